package objectstore

import (
	"context"
	"errors"
	"time"

	"github.com/restorehq/restore/pkg/retry"
	"go.uber.org/zap"
)

// Resilient bounds every call to the wrapped store with a timeout and retries
// transient failures. Missing objects are never retried.
type Resilient struct {
	next   Store
	policy retry.Policy
	log    *zap.Logger
}

func NewResilient(next Store, timeout time.Duration, maxTries int, log *zap.Logger) *Resilient {
	policy := retry.DefaultPolicy()
	policy.AttemptTimeout = timeout
	if maxTries > 0 {
		policy.MaxTries = uint(maxTries)
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Resilient{next: next, policy: policy, log: log.Named("objectstore")}
	return r
}

func (r *Resilient) Put(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := retry.Do(ctx, r.policyFor("put", path), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, classify(r.next.Put(ctx, path, data, contentType))
	})
	return err
}

func (r *Resilient) Get(ctx context.Context, path string) ([]byte, error) {
	return retry.Do(ctx, r.policyFor("get", path), func(ctx context.Context) ([]byte, error) {
		data, err := r.next.Get(ctx, path)
		return data, classify(err)
	})
}

func (r *Resilient) List(ctx context.Context, prefix string) ([]string, error) {
	return retry.Do(ctx, r.policyFor("list", prefix), func(ctx context.Context) ([]string, error) {
		paths, err := r.next.List(ctx, prefix)
		return paths, classify(err)
	})
}

func (r *Resilient) policyFor(op, path string) retry.Policy {
	p := r.policy
	p.OnRetry = func(err error, wait time.Duration) {
		r.log.Warn("retrying storage operation",
			zap.String("op", op),
			zap.String("path", path),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return p
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrObjectNotFound) || errors.Is(err, context.Canceled) {
		return retry.Permanent(err)
	}
	return err
}

var _ Store = (*Resilient)(nil)
