// Package objectstore persists partition files and insights as named blobs.
package objectstore

import (
	"context"
	"errors"
	"fmt"
)

// Store is the blob gateway the pipeline writes partitions through.
type Store interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
	Get(ctx context.Context, path string) ([]byte, error)
	// List returns object paths under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}

const ContentTypeCSV = "text/csv"

var ErrObjectNotFound = errors.New("object_not_found")

// StorageError wraps a failed store operation.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Path: path, Err: err}
}
