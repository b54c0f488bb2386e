package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var objectsBucket = []byte("objects")

type boltObject struct {
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"data"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BoltStore keeps objects in a local bbolt file, for single-node deployments and tests.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, storageErr("open", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(objectsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, storageErr("open", path, err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return storageErr("put", path, err)
	}
	if strings.TrimSpace(path) == "" {
		return storageErr("put", path, errors.New("empty object path"))
	}

	encoded, err := json.Marshal(boltObject{
		ContentType: contentType,
		Data:        data,
		UpdatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return storageErr("put", path, err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(objectsBucket).Put([]byte(path), encoded)
	})
	return storageErr("put", path, err)
}

func (s *BoltStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("get", path, err)
	}

	var obj boltObject
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(objectsBucket).Get([]byte(path))
		if raw == nil {
			return ErrObjectNotFound
		}
		return json.Unmarshal(raw, &obj)
	})
	if err != nil {
		return nil, storageErr("get", path, err)
	}
	return obj.Data, nil
}

func (s *BoltStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, storageErr("list", prefix, err)
	}

	var paths []string
	p := []byte(prefix)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(objectsBucket).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			paths = append(paths, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("list", prefix, err)
	}
	return paths, nil
}

var _ Store = (*BoltStore)(nil)
