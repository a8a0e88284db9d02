package middleware_test

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/persistence/middleware"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func encrypted(t *testing.T, config middleware.EncryptionConfig) middleware.Middleware {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(config)
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware failed: %v", err)
	}
	return mw
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlyingStore := memory.NewStore()
	secureStore := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)

	ctx := context.Background()
	sessionID := "test-session"
	root := domain.NewValue()
	root.FirstChild("secret").SetValue("my-secret-sauce")
	original := domain.NewSnapshot(sessionID, domain.StatusFaulted, root)
	original.Fault = "Boom"

	if err := secureStore.Save(ctx, sessionID, original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// The underlying store only sees the envelope.
	stored, err := underlyingStore.Load(ctx, sessionID)
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if stored.Root.HasChildren("secret") {
		t.Fatalf("Expected secret to be hidden, found: %v", stored.Root.FirstChild("secret"))
	}
	if !stored.Root.HasChildren(middleware.EnvelopeField) {
		t.Fatal("Expected envelope field in root")
	}
	if stored.Status != domain.StatusFaulted || stored.Fault != "Boom" {
		t.Errorf("Envelope should keep status and fault, got %s/%s", stored.Status, stored.Fault)
	}

	loaded, err := secureStore.Load(ctx, sessionID)
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if got := loaded.Root.FirstChild("secret").StrValue(); got != "my-secret-sauce" {
		t.Errorf("Expected 'my-secret-sauce', got %v", got)
	}
	if original.Root.FirstChild("secret").StrValue() != "my-secret-sauce" {
		t.Error("Middleware modified the saved snapshot")
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlyingStore := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	secureStoreOld := encrypted(t, middleware.EncryptionConfig{ActiveKey: oldKey})(underlyingStore)

	ctx := context.Background()
	sessionID := "rotation-session"
	root := domain.NewValue()
	root.FirstChild("data").SetValue("encrypted-with-old-key")

	if err := secureStoreOld.Save(ctx, sessionID, domain.NewSnapshot(sessionID, domain.StatusRunning, root)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	secureStoreNew := encrypted(t, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlyingStore)

	loaded, err := secureStoreNew.Load(ctx, sessionID)
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loaded.Root.FirstChild("data").StrValue() != "encrypted-with-old-key" {
		t.Errorf("Decryption with fallback key failed")
	}

	// Saving again re-encrypts with the new key.
	loaded.Root.FirstChild("data").SetValue("encrypted-with-new-key")
	if err := secureStoreNew.Save(ctx, sessionID, loaded); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}
	if _, err := secureStoreOld.Load(ctx, sessionID); err == nil {
		t.Error("Expected failure when loading new-key encryption with old-key middleware")
	}
}

func TestEncryptionMiddleware_RejectsPlainSnapshots(t *testing.T) {
	underlyingStore := memory.NewStore()
	ctx := context.Background()
	if err := underlyingStore.Save(ctx, "plain", domain.NewSnapshot("plain", domain.StatusCompleted, nil)); err != nil {
		t.Fatal(err)
	}
	secureStore := encrypted(t, middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)
	if _, err := secureStore.Load(ctx, "plain"); err == nil {
		t.Error("Expected plain snapshot to be refused")
	}
	if _, err := secureStore.Load(ctx, "ghost"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	if _, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")}); !errors.Is(err, middleware.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	if !errors.Is(err, middleware.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for fallback key, got %v", err)
	}
}
