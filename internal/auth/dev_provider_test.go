package auth

import (
	"testing"
	"time"
)

func TestDevIdentityProviderReturnsConfiguredIdentity(t *testing.T) {
	now := time.Date(2025, 2, 2, 10, 0, 0, 0, time.UTC)
	provider, err := NewDevIdentityProvider(DevIdentityConfig{
		ID:    "dev-user",
		Email: " Dev@Example.com ",
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewDevIdentityProvider error: %v", err)
	}

	identity := provider.Identity("")
	if identity.ID != "dev-user" || identity.Email != "dev@example.com" {
		t.Fatalf("unexpected identity %#v", identity)
	}
	if !identity.EmailConfirmed() {
		t.Fatalf("expected dev identities to be confirmed")
	}
}

func TestDevIdentityProviderDerivesStableIdentityFromEmail(t *testing.T) {
	provider, err := NewDevIdentityProvider(DevIdentityConfig{Email: "dev@example.com"})
	if err != nil {
		t.Fatalf("NewDevIdentityProvider error: %v", err)
	}

	first := provider.Identity("manager@example.com")
	second := provider.Identity("MANAGER@example.com")
	if first.ID == "" || first.ID != second.ID {
		t.Fatalf("expected stable derived id, got %q and %q", first.ID, second.ID)
	}
	if first.ID == provider.Identity("").ID {
		t.Fatalf("expected derived identity to differ from the default identity")
	}
}

func TestDevIdentityProviderRequiresEmail(t *testing.T) {
	if _, err := NewDevIdentityProvider(DevIdentityConfig{ID: "dev-user"}); err == nil {
		t.Fatalf("expected error without email")
	}
}
