package objectstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newBolt(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltPutGetList(t *testing.T) {
	ctx := context.Background()
	store := newBolt(t)

	require.NoError(t, store.Put(ctx, "demand/c1-demand/product_p1.csv", []byte("a"), ContentTypeCSV))
	require.NoError(t, store.Put(ctx, "demand/c1-demand/product_p2.csv", []byte("b"), ContentTypeCSV))
	require.NoError(t, store.Put(ctx, "demand/c10-demand/product_p1.csv", []byte("c"), ContentTypeCSV))
	require.NoError(t, store.Put(ctx, "sales/c1-sales/sales_1.csv", []byte("d"), ContentTypeCSV))

	data, err := store.Get(ctx, "demand/c1-demand/product_p2.csv")
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	paths, err := store.List(ctx, "demand/c1-demand/")
	require.NoError(t, err)
	assert.Equal(t, []string{"demand/c1-demand/product_p1.csv", "demand/c1-demand/product_p2.csv"}, paths)
}

func TestBoltPutOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newBolt(t)

	require.NoError(t, store.Put(ctx, "k", []byte("old"), ContentTypeCSV))
	require.NoError(t, store.Put(ctx, "k", []byte("new"), ContentTypeCSV))

	data, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestBoltGetMissing(t *testing.T) {
	_, err := newBolt(t).Get(context.Background(), "nope")

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "get", se.Op)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

type flakyStore struct {
	Store
	failures atomic.Int32
	calls    atomic.Int32
}

func (f *flakyStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	f.calls.Add(1)
	if f.failures.Add(-1) >= 0 {
		return &StorageError{Op: "put", Path: path, Err: errors.New("connection reset")}
	}
	return f.Store.Put(ctx, path, data, contentType)
}

func TestResilientRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyStore{Store: newBolt(t)}
	flaky.failures.Store(2)

	r := NewResilient(flaky, time.Second, 3, zap.NewNop())
	r.policy.InitialInterval = time.Millisecond
	r.policy.MaxInterval = time.Millisecond

	require.NoError(t, r.Put(ctx, "k", []byte("v"), ContentTypeCSV))
	assert.Equal(t, int32(3), flaky.calls.Load())

	data, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(data))
}

func TestResilientDoesNotRetryMissingObjects(t *testing.T) {
	r := NewResilient(newBolt(t), time.Second, 5, zap.NewNop())

	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
