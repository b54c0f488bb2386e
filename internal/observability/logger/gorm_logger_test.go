package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	obscontext "github.com/restorehq/restore/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObserved(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

func TestGormConfigFrom(t *testing.T) {
	cfg := GormConfigFrom("ERROR", 500*time.Millisecond)
	assert.Equal(t, gormlogger.Error, cfg.Level)
	assert.Equal(t, 500*time.Millisecond, cfg.SlowThreshold)
	assert.True(t, cfg.IgnoreRecordNotFound)

	assert.Equal(t, gormlogger.Warn, GormConfigFrom("", 0).Level)
	assert.Equal(t, gormlogger.Silent, GormConfigFrom("off", 0).Level)
	assert.Zero(t, GormConfigFrom("info", -time.Second).SlowThreshold)
}

func TestSlowStatementCarriesRequestFields(t *testing.T) {
	base, logs := newObserved(zapcore.DebugLevel)
	l := NewGormLogger(base, GormConfigFrom("warn", 10*time.Millisecond))

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithCustomerID(ctx, "jane@example.com")

	l.Trace(ctx, time.Now().Add(-time.Second), func() (string, int64) {
		return `UPDATE "credit_accounts" SET balance = balance - 1 WHERE email = ? AND balance >= ?`, 1
	}, nil)

	entries := logs.All()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "slow sql statement", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "jane@example.com", fields["customer_id"])
	assert.Equal(t, "UPDATE", fields["operation"])
	assert.Equal(t, "credit_accounts", fields["table"])
	assert.Equal(t, int64(10), fields["slow_threshold_ms"])
}

func TestFastStatementIsQuietAtWarn(t *testing.T) {
	base, logs := newObserved(zapcore.DebugLevel)
	l := NewGormLogger(base, GormConfigFrom("warn", time.Minute))

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `SELECT * FROM "payment_receipts"`, 3
	}, nil)
	assert.Zero(t, logs.Len())
}

func TestRecordNotFoundIsNotAnError(t *testing.T) {
	base, logs := newObserved(zapcore.DebugLevel)
	l := NewGormLogger(base, GormConfigFrom("warn", 0))

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `SELECT * FROM "payment_receipts" WHERE id = ?`, 0
	}, gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `INSERT INTO "credit_grants" ("key") VALUES (?)`, 0
	}, errors.New("disk I/O error"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "credit_grants", entry.ContextMap()["table"])
	assert.Equal(t, "INSERT", entry.ContextMap()["operation"])
}

func TestParamsFilterDropsValues(t *testing.T) {
	l := NewGormLogger(zap.NewNop(), GormConfigFrom("info", 0))
	sql, params := l.ParamsFilter(context.Background(), "SELECT 1 WHERE email = ?", "jane@example.com")
	assert.Equal(t, "SELECT 1 WHERE email = ?", sql)
	assert.Nil(t, params)
}

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql, op, table string
	}{
		{`SELECT * FROM "credit_accounts" WHERE email = ?`, "SELECT", "credit_accounts"},
		{"INSERT INTO `payment_receipts` (id) VALUES (?)", "INSERT", "payment_receipts"},
		{`UPDATE credit_accounts SET balance = ?`, "UPDATE", "credit_accounts"},
		{`DELETE FROM credit_debits WHERE id = ?`, "DELETE", "credit_debits"},
		{`PRAGMA foreign_keys = ON`, "UNKNOWN", ""},
	}
	for _, tc := range cases {
		op, table := describeSQL(tc.sql)
		assert.Equal(t, tc.op, op, tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
	}
}
