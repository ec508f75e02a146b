package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hirokts/enikki/pkg/ports"
)

// ObjectStore implements ports.ObjectStore and ports.ObjectReader in memory.
type ObjectStore struct {
	baseURL string
	objects map[string]ports.Object
	mu      sync.RWMutex
}

// NewObjectStore creates a store whose URLs are rooted at baseURL.
func NewObjectStore(baseURL string) *ObjectStore {
	return &ObjectStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]ports.Object),
	}
}

// Put stores a copy of data under key.
func (s *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", errors.New("object key is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = ports.Object{
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
	}
	return s.baseURL + "/" + key, nil
}

// Get returns a copy of the object stored under key.
func (s *ObjectStore) Get(ctx context.Context, key string) (ports.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return ports.Object{}, ports.ErrObjectNotFound
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, nil
}

// Keys returns the stored keys in no particular order.
func (s *ObjectStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}
