package httpapi

import (
	"errors"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"pharmasys/internal/domain"
)

func newAuthManager(t *testing.T, secret string, ttl time.Duration, passphrase string) *AuthManager {
	t.Helper()
	manager, err := NewAuthManager(secret, ttl, passphrase)
	if err != nil {
		t.Fatalf("new auth manager: %v", err)
	}
	return manager
}

func TestAuthManagerOpenGateAcceptsAnyCredentials(t *testing.T) {
	manager := newAuthManager(t, "test-secret", time.Hour, "")

	resp, err := manager.Login(domain.LoginRequest{Username: "  night-shift ", Password: "whatever"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Username != "night-shift" {
		t.Fatalf("expected trimmed username, got %q", resp.Username)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "night-shift" {
		t.Fatalf("expected actor night-shift, got %q", actor.Username)
	}
}

func TestAuthManagerRejectsBlankCredentials(t *testing.T) {
	manager := newAuthManager(t, "test-secret", time.Hour, "")

	for _, req := range []domain.LoginRequest{
		{Username: "", Password: "x"},
		{Username: "admin", Password: "   "},
	} {
		if _, err := manager.Login(req); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected invalid credentials for %+v, got %v", req, err)
		}
	}
}

func TestAuthManagerPassphraseIsHashedAndEnforced(t *testing.T) {
	manager := newAuthManager(t, "test-secret", time.Hour, "open-sesame")

	if !isPasswordHash(manager.passphrase) {
		t.Fatalf("expected passphrase to be stored as a bcrypt hash")
	}
	if _, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected wrong passphrase to be rejected, got %v", err)
	}
	if _, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "open-sesame"}); err != nil {
		t.Fatalf("expected passphrase login to succeed, got %v", err)
	}
}

func TestAuthManagerRejectsUnhashablePassphrase(t *testing.T) {
	_, err := NewAuthManager("test-secret", time.Hour, strings.Repeat("x", 80))
	if !errors.Is(err, bcrypt.ErrPasswordTooLong) {
		t.Fatalf("expected passphrase over 72 bytes to be rejected, got %v", err)
	}

	manager := newAuthManager(t, "test-secret", time.Hour, strings.Repeat("x", 72))
	if _, err := manager.Login(domain.LoginRequest{Username: "admin", Password: strings.Repeat("x", 72)}); err != nil {
		t.Fatalf("expected 72 byte passphrase login to succeed, got %v", err)
	}
}

func TestAuthManagerRejectsExpiredAndForeignTokens(t *testing.T) {
	manager := newAuthManager(t, "test-secret", time.Minute, "")
	issuedAt := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return issuedAt }

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "x"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	manager.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	other := newAuthManager(t, "another-secret", time.Hour, "")
	foreign, err := other.Login(domain.LoginRequest{Username: "admin", Password: "x"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := manager.ParseToken(foreign.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.RegisteredClaims{Subject: "admin"}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := manager.ParseToken(unsigned); err == nil {
		t.Fatalf("expected unsigned token to be rejected")
	}
}
