package middleware_test

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/hirokts/enikki/pkg/adapters/memory"
	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/persistence/middleware"
	"github.com/hirokts/enikki/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func secure(t *testing.T, next ports.DiaryStore, cfg middleware.EncryptionConfig) ports.DiaryStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware failed: %v", err)
	}
	return middleware.Chain(next, mw)
}

func completedDoc(id, text string) domain.Document {
	now := time.Now()
	doc := domain.NewPendingDocument(id, "2024-05-01", now)
	doc.Status = domain.StatusCompleted
	doc.DiaryText = text
	doc.Keywords = []string{"公園", "すべり台", "友だち", "夕焼け"}
	return doc
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	store := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	if err := store.Save(ctx, "run-1", completedDoc("run-1", "きょうは こうえんで あそんだよ。")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	raw, err := underlying.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if strings.Contains(raw.DiaryText, "こうえん") {
		t.Fatalf("Expected diary text to be sealed, found: %q", raw.DiaryText)
	}
	if raw.Status != domain.StatusCompleted || len(raw.Keywords) != 4 {
		t.Errorf("Expected metadata to stay readable, got %+v", raw)
	}

	loaded, err := store.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if loaded.DiaryText != "きょうは こうえんで あそんだよ。" {
		t.Errorf("Unexpected diary text %q", loaded.DiaryText)
	}
}

func TestEncryptionMiddleware_RepeatedSaveLoadsTheSame(t *testing.T) {
	underlying := memory.NewStore()
	store := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()
	doc := completedDoc("run-5", "はなびを みたよ。")

	if err := store.Save(ctx, "run-5", doc); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	firstRaw, _ := underlying.Load(ctx, "run-5")
	first, err := store.Load(ctx, "run-5")
	if err != nil {
		t.Fatalf("First load failed: %v", err)
	}

	if err := store.Save(ctx, "run-5", doc); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}
	secondRaw, _ := underlying.Load(ctx, "run-5")
	second, err := store.Load(ctx, "run-5")
	if err != nil {
		t.Fatalf("Second load failed: %v", err)
	}

	// Fresh nonces make the sealed bytes differ; the decrypted document does not.
	if firstRaw.DiaryText == secondRaw.DiaryText {
		t.Errorf("Expected a fresh nonce per save")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Loads differ after repeated save:\n%+v\n%+v", first, second)
	}
}

func TestEncryptionMiddleware_PendingPassesThrough(t *testing.T) {
	underlying := memory.NewStore()
	store := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	if err := store.Save(ctx, "run-2", domain.NewPendingDocument("run-2", "2024-05-02", time.Now())); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	doc, err := store.Load(ctx, "run-2")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if doc.DiaryText != "" || doc.Status != domain.StatusPending {
		t.Errorf("Unexpected document %+v", doc)
	}

	ids, err := store.List(ctx)
	if err != nil || len(ids) != 1 {
		t.Fatalf("List = %v, %v", ids, err)
	}
	if err := store.Delete(ctx, "run-2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(ctx, "run-2"); !errors.Is(err, domain.ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)
	ctx := context.Background()

	old := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	if err := old.Save(ctx, "run-3", completedDoc("run-3", "あめ")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rotated := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	doc, err := rotated.Load(ctx, "run-3")
	if err != nil {
		t.Fatalf("Load with fallback key failed: %v", err)
	}
	if doc.DiaryText != "あめ" {
		t.Errorf("Unexpected diary text %q", doc.DiaryText)
	}

	stranger := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if _, err := stranger.Load(ctx, "run-3"); err == nil {
		t.Error("Expected decryption with an unrelated key to fail")
	}
}

func TestEncryptionMiddleware_RejectsPlainText(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	if err := underlying.Save(ctx, "run-4", completedDoc("run-4", "plain")); err != nil {
		t.Fatal(err)
	}

	store := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if _, err := store.Load(ctx, "run-4"); !errors.Is(err, middleware.ErrNotSealed) {
		t.Errorf("Expected ErrNotSealed, got %v", err)
	}
}

func TestEncryptionConfig_Validate(t *testing.T) {
	if _, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")}); err == nil {
		t.Error("Expected short active key to be rejected")
	}
	cfg := middleware.EncryptionConfig{ActiveKey: generateKey(t), FallbackKeys: [][]byte{[]byte("x")}}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected short fallback key to be rejected")
	}
}
