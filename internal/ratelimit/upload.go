package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/restorehq/restore/internal/config"
)

const (
	keyUploadCustomer   = "restore:upload:customer:%s"
	keyReconcileSession = "restore:reconcile:session:%s"
)

// UploadLimiter throttles uploads per customer.
type UploadLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewUploadLimiter(cfg config.Config, client *redis.Client) *UploadLimiter {
	if client == nil || cfg.RateLimit.UploadRate <= 0 || cfg.RateLimit.UploadBurst <= 0 {
		return nil
	}
	return &UploadLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.RateLimit.UploadRate,
		burst:  cfg.RateLimit.UploadBurst,
	}
}

func (l *UploadLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *UploadLimiter) Allow(ctx context.Context, customerID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyUploadCustomer, strings.TrimSpace(customerID)), l.rate, l.burst)
}

// SessionLocker serializes reconciliation of one checkout session across replicas.
type SessionLocker struct {
	locker *Locker
	ttl    time.Duration
}

func NewSessionLocker(cfg config.Config, client *redis.Client) *SessionLocker {
	if client == nil {
		return nil
	}
	ttl := cfg.RateLimit.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SessionLocker{locker: NewLocker(client), ttl: ttl}
}

// Lock returns a release func. A disabled locker always grants the lock.
func (l *SessionLocker) Lock(ctx context.Context, sessionID string) (func(context.Context), bool, error) {
	if l == nil || l.locker == nil {
		return func(context.Context) {}, true, nil
	}
	key := fmt.Sprintf(keyReconcileSession, strings.TrimSpace(sessionID))
	token, ok, err := l.locker.TryLock(ctx, key, l.ttl)
	if err != nil || !ok {
		return func(context.Context) {}, ok, err
	}
	return func(ctx context.Context) { _ = l.locker.Release(ctx, key, token) }, true, nil
}
