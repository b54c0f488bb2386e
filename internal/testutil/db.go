// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE customer_credits (
		email TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE credit_grants (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL,
		amount INTEGER NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE credit_debits (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL,
		amount INTEGER NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		reason TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payment_receipts (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL,
		checkout_session_id TEXT NOT NULL,
		external_payment_id TEXT NOT NULL UNIQUE,
		amount INTEGER NOT NULL,
		quantity INTEGER NOT NULL,
		currency TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		paid_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		payload TEXT
	)`,
}

// OpenSQLite returns an isolated in-memory database with the credit and receipt tables.
// A single connection serializes transactions the way row locks do in postgres.
func OpenSQLite(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// SeedBalance creates an account holding balance credits.
func SeedBalance(t testing.TB, db *gorm.DB, email string, balance int64) {
	t.Helper()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO customer_credits (email, balance, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		email, balance, now, now,
	).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}
}

func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(10)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}
