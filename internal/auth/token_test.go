package auth

import (
	"testing"
	"time"
)

func TestTokenServiceAccessRoundTrip(t *testing.T) {
	svc, err := NewTokenService("test-secret")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	claims := map[string]any{
		"userId":   "user-1",
		"username": "alice",
		"userType": UserTypeOrgOwner,
	}
	token, err := svc.IssueAccess(claims)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	parsed, err := svc.ParseAndVerify(token)
	if err != nil {
		t.Fatalf("ParseAndVerify: %v", err)
	}
	if parsed["userId"] != "user-1" || parsed["username"] != "alice" {
		t.Fatalf("claims not preserved: %v", parsed)
	}
	if parsed["jti"] == "" || parsed["jti"] == nil {
		t.Fatalf("expected unique token id, got %v", parsed["jti"])
	}
}

func TestTokenServiceRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewTokenService("secret-a")
	verifier, _ := NewTokenService("secret-b")

	token, err := issuer.IssueAccess(map[string]any{"userId": "u"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := verifier.ParseAndVerify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenServiceRejectsExpired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	svc, err := NewTokenService("test-secret",
		WithAccessTTL(time.Minute),
		WithClock(func() time.Time { return past }),
	)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	token, err := svc.IssueAccess(map[string]any{"userId": "u"})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := svc.ParseAndVerify(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenServiceRejectsGarbage(t *testing.T) {
	svc, _ := NewTokenService("test-secret")
	for _, token := range []string{"", "not-a-token", "a.b", "a.b.c.d"} {
		if _, err := svc.ParseAndVerify(token); err != ErrInvalidToken {
			t.Fatalf("ParseAndVerify(%q): expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestTokenServiceRefreshCarriesNoIdentity(t *testing.T) {
	svc, _ := NewTokenService("test-secret")
	token, err := svc.IssueRefresh()
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	claims, err := svc.ParseAndVerify(token)
	if err != nil {
		t.Fatalf("ParseAndVerify: %v", err)
	}
	for _, key := range []string{"userId", "username", "userType", "organizationId"} {
		if _, ok := claims[key]; ok {
			t.Fatalf("refresh token must not carry %q", key)
		}
	}
}

func TestTokenServiceTTLSeconds(t *testing.T) {
	svc, err := NewTokenService("test-secret",
		WithAccessTTL(900*time.Second),
		WithRefreshTTL(48*time.Hour),
	)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	if got := svc.AccessTTLSeconds(); got != 900 {
		t.Fatalf("AccessTTLSeconds=%d, want 900", got)
	}
	if got := svc.RefreshTTLSeconds(); got != 172800 {
		t.Fatalf("RefreshTTLSeconds=%d, want 172800", got)
	}
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	if _, err := NewTokenService(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
