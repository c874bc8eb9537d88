package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vstrealm/reviewd/internal/apperror"
)

// newTestTokenService creates a TokenService with a fixed secret and the
// default TTL so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func TestNewTokenService_ShortSecret(t *testing.T) {
	if _, err := NewTokenService("short", time.Minute); err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts, err := NewTokenService("this-is-16-chars", 0)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if ts.ttl != DefaultTokenTTL {
		t.Errorf("ttl = %v, want %v", ts.ttl, DefaultTokenTTL)
	}
}

func TestIssue_ReturnsJWTAndExpiry(t *testing.T) {
	ts := newTestTokenService(t)

	token, expiresAt, err := ts.Issue("alice@x.com")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if token == "" {
		t.Error("Issue() returned empty token")
	}
	// header.payload.signature
	if got := strings.Count(token, "."); got != 2 {
		t.Errorf("Issue() token doesn't look like a JWT (expected 2 dots, got %d)", got)
	}

	remaining := time.Until(expiresAt)
	if remaining < 29*time.Minute || remaining > 30*time.Minute {
		t.Errorf("expiry %v from now, want ~%v", remaining, DefaultTokenTTL)
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)
	subject := "alice@x.com"

	token, _, err := ts.Issue(subject)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	got, err := ts.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != subject {
		t.Errorf("Verify() subject = %q, want %q", got, subject)
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _, err := ts.IssueWithDuration("alice@x.com", -1*time.Second)
	if err != nil {
		t.Fatalf("IssueWithDuration() error = %v", err)
	}

	_, err = ts.Verify(token)
	if err == nil {
		t.Fatal("Verify() should return an error for an expired token")
	}
	if !errors.Is(err, apperror.ErrInvalidToken) {
		t.Errorf("expired token error should wrap ErrInvalidToken, got: %v", err)
	}
}

func TestVerify_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _, _ := ts.Issue("alice@x.com")
	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Verify(tampered); !errors.Is(err, apperror.ErrInvalidToken) {
		t.Fatalf("Verify() on tampered token = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", 0)
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", 0)

	token, _, _ := ts1.Issue("alice@x.com")

	if _, err := ts2.Verify(token); err == nil {
		t.Fatal("Verify() should fail when using a different secret")
	}
}

func TestVerify_GarbageInput(t *testing.T) {
	ts := newTestTokenService(t)

	for _, tok := range []string{"", "not.a.jwt", "not.a.jwt.token"} {
		if _, err := ts.Verify(tok); !errors.Is(err, apperror.ErrInvalidToken) {
			t.Errorf("Verify(%q) = %v, want ErrInvalidToken", tok, err)
		}
	}
}

func TestIssueWithDuration_FutureToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, _, err := ts.IssueWithDuration("alice@x.com", 1*time.Hour)
	if err != nil {
		t.Fatalf("IssueWithDuration() error = %v", err)
	}

	subject, err := ts.Verify(token)
	if err != nil {
		t.Fatalf("Verify() on 1h token error = %v", err)
	}
	if subject != "alice@x.com" {
		t.Errorf("subject = %q, want %q", subject, "alice@x.com")
	}
}
