package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/persistence/middleware"
)

func TestPIIMiddleware_Masking(t *testing.T) {
	underlyingStore := memory.NewStore()
	// Mask variables containing "password" or "ssn"
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	if err != nil {
		t.Fatal(err)
	}
	secureStore := mw(underlyingStore)

	ctx := context.Background()
	sessionID := "pii-session"
	root := domain.NewValue()
	root.FirstChild("username").SetValue("jdoe")
	root.FirstChild("user_password").SetValue("secret123")
	root.FirstChild("details").FirstChild("address").SetValue("123 St")
	root.FirstChild("details").FirstChild("ssn_number").SetValue("999-99-9999")
	root.Children("accounts").Append(domain.NewValue())
	root.Children("accounts").Get(0).FirstChild("password").SetValue("hunter2")
	snapshot := domain.NewSnapshot(sessionID, domain.StatusRunning, root)

	if err := secureStore.Save(ctx, sessionID, snapshot); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if snapshot.Root.FirstChild("user_password").StrValue() != "secret123" {
		t.Error("Middleware modified the in-memory snapshot!")
	}

	stored, err := underlyingStore.Load(ctx, sessionID)
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if stored.Root.FirstChild("username").StrValue() != "jdoe" {
		t.Error("Username shouldn't be masked")
	}
	if got := stored.Root.FirstChild("user_password").StrValue(); got != middleware.Mask {
		t.Errorf("Password should be masked, got: %v", got)
	}
	if got := stored.Root.FirstChild("details").FirstChild("ssn_number").StrValue(); got != middleware.Mask {
		t.Errorf("Nested SSN should be masked, got: %v", got)
	}
	if got := stored.Root.Children("accounts").Get(0).FirstChild("password").StrValue(); got != middleware.Mask {
		t.Errorf("Password inside a vector should be masked, got: %v", got)
	}
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	if _, err := middleware.NewPIIMiddleware([]string{"("}); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestChain(t *testing.T) {
	underlyingStore := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"card"})
	if err != nil {
		t.Fatal(err)
	}
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if err != nil {
		t.Fatal(err)
	}
	store := middleware.Chain(underlyingStore, pii, enc)

	ctx := context.Background()
	root := domain.NewValue()
	root.FirstChild("card").SetValue("4111")
	if err := store.Save(ctx, "s", domain.NewSnapshot("s", domain.StatusCompleted, root)); err != nil {
		t.Fatal(err)
	}

	// Redaction runs before encryption, so the decrypted copy is masked.
	loaded, err := store.Load(ctx, "s")
	if err != nil {
		t.Fatal(err)
	}
	if got := loaded.Root.FirstChild("card").StrValue(); got != middleware.Mask {
		t.Errorf("Expected masked card, got %v", got)
	}
}
