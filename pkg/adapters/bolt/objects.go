// Package bolt stores rendered diary illustrations in a local BoltDB file.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hirokts/enikki/pkg/ports"
	bbolt "go.etcd.io/bbolt"
)

// DefaultBucket holds object payloads. Content types live in a sibling bucket.
const DefaultBucket = "objects"

// ObjectStore implements ports.ObjectStore and ports.ObjectReader on bbolt.
type ObjectStore struct {
	db      *bbolt.DB
	data    []byte
	types   []byte
	baseURL string
}

type Option func(*ObjectStore)

// WithBucket overrides the bucket name.
func WithBucket(name string) Option {
	return func(s *ObjectStore) {
		if name != "" {
			s.data = []byte(name)
			s.types = []byte(name + "_types")
		}
	}
}

// Open opens (or creates) the database at path. Returned URLs are rooted at
// baseURL, which must be absolute.
func Open(path, baseURL string, opts ...Option) (*ObjectStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}

	s := &ObjectStore{
		db:      db,
		data:    []byte(DefaultBucket),
		types:   []byte(DefaultBucket + "_types"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(s)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.data); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(s.types)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Put stores data under key and returns its public URL.
func (s *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", errors.New("object key is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(s.data).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(s.types).Put([]byte(key), []byte(contentType))
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// Get returns the object stored under key.
func (s *ObjectStore) Get(ctx context.Context, key string) (ports.Object, error) {
	var obj ports.Object
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(s.data).Get([]byte(key))
		if v == nil {
			return ports.ErrObjectNotFound
		}
		// Values are only valid for the life of the transaction.
		obj.Data = append([]byte(nil), v...)
		obj.ContentType = string(tx.Bucket(s.types).Get([]byte(key)))
		return nil
	})
	if err != nil {
		return ports.Object{}, err
	}
	return obj, nil
}

// Keys lists stored keys in byte order.
func (s *ObjectStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.data).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Close releases the database file.
func (s *ObjectStore) Close() error {
	return s.db.Close()
}
