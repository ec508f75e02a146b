package tests

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/hirokts/enikki/pkg/ports"
)

// ObjectStoreContractTest is a reusable test suite that verifies if an adapter complies with
// ports.ObjectStore and ports.ObjectReader.
func ObjectStoreContractTest(t *testing.T, store interface {
	ports.ObjectStore
	ports.ObjectReader
}) {
	t.Helper()
	ctx := context.Background()
	payload := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}

	// 1. Put returns an absolute URL
	t.Run("Put_ReturnsURL", func(t *testing.T) {
		raw, err := store.Put(ctx, "diaries/run-1/a.png", payload, "image/png")
		if err != nil {
			t.Fatalf("unexpected error on put: %v", err)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			t.Errorf("expected absolute http(s) url, got %q", raw)
		}
	})

	// 2. Get returns the stored blob
	t.Run("Get_Success", func(t *testing.T) {
		obj, err := store.Get(ctx, "diaries/run-1/a.png")
		if err != nil {
			t.Fatalf("unexpected error on get: %v", err)
		}
		if !bytes.Equal(obj.Data, payload) {
			t.Errorf("payload mismatch: got %v", obj.Data)
		}
		if obj.ContentType != "image/png" {
			t.Errorf("content type mismatch: got %q", obj.ContentType)
		}
	})

	// 3. Get (NotFound)
	t.Run("Get_NotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "diaries/missing.png")
		if !errors.Is(err, ports.ErrObjectNotFound) {
			t.Errorf("expected ErrObjectNotFound, got %v", err)
		}
	})

	// 4. Put rejects empty keys
	t.Run("Put_EmptyKey", func(t *testing.T) {
		if _, err := store.Put(ctx, "", payload, "image/png"); err == nil {
			t.Error("expected error for empty key")
		}
	})
}
