package main

import (
	"strings"
	"testing"
)

func newTestAuth(t *testing.T) (*Auth, *DB) {
	t.Helper()
	db := newTestDB(t)
	return NewAuth(db), db
}

func TestRegisterAndLogin(t *testing.T) {
	auth, _ := newTestAuth(t)

	id, token, err := auth.Register("bomber", "secret123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if id == 0 || token == "" {
		t.Fatal("register should return an id and a token")
	}

	if _, _, err := auth.Register("bomber", "other"); err == nil {
		t.Error("duplicate registration should fail")
	}

	loginID, loginToken, err := auth.Login("bomber", "secret123", "10.0.0.1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if loginID != id || loginToken == "" {
		t.Error("login should return the same account id and a token")
	}

	if _, _, err := auth.Login("bomber", "wrong", "10.0.0.1"); err == nil {
		t.Error("wrong password should fail")
	}
	if _, _, err := auth.Login("nobody", "secret123", "10.0.0.1"); err == nil {
		t.Error("unknown user should fail")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	auth, _ := newTestAuth(t)
	id, token, err := auth.Register("bomber", "secret123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	gotID, username, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if gotID != id || username != "bomber" {
		t.Errorf("claims mismatch: id=%d user=%q", gotID, username)
	}

	if _, _, err := auth.ValidateToken("not-a-token"); err == nil {
		t.Error("garbage token should fail")
	}
	if _, _, err := auth.ValidateToken(token + "x"); err == nil {
		t.Error("tampered token should fail")
	}
}

func TestSecretPersistsAcrossRestarts(t *testing.T) {
	auth, db := newTestAuth(t)
	_, token, err := auth.Register("bomber", "secret123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// A new Auth over the same database loads the same signing secret
	again := NewAuth(db)
	if _, _, err := again.ValidateToken(token); err != nil {
		t.Errorf("token should survive an auth layer restart: %v", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	auth, _ := newTestAuth(t)
	auth.Register("bomber", "secret123")

	var lastErr error
	for i := 0; i < 20; i++ {
		_, _, lastErr = auth.Login("bomber", "wrong", "10.9.9.9")
	}
	if lastErr == nil || !strings.Contains(lastErr.Error(), "attempts") {
		t.Errorf("hammering login should rate limit, got %v", lastErr)
	}

	// Another address is unaffected
	if _, _, err := auth.Login("bomber", "secret123", "10.1.1.1"); err != nil {
		t.Errorf("clean address should still log in: %v", err)
	}
}

func TestGuestNames(t *testing.T) {
	a, b := GenerateGuestName(), GenerateGuestName()
	if !strings.HasPrefix(a, "Bomber_") {
		t.Errorf("unexpected guest name %q", a)
	}
	if a == b {
		t.Error("guest names should vary")
	}
}
