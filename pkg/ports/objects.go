package ports

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by ObjectReader when a key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore hosts generated illustrations.
type ObjectStore interface {
	// Put stores data under key and returns its public URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Object is a stored blob with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// ObjectReader is implemented by object stores that can also serve their blobs.
type ObjectReader interface {
	Get(ctx context.Context, key string) (Object, error)
}
