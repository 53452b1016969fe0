package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerateVerify(t *testing.T) {
	m := NewManager("secret", time.Hour)
	tok, err := m.Generate("u1", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "alice" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyRejects(t *testing.T) {
	m := NewManager("secret", time.Hour)
	other := NewManager("other", time.Hour)
	tok, _ := other.Generate("u1", "alice")
	if _, err := m.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign token err = %v", err)
	}
	if _, err := m.Verify("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage err = %v", err)
	}
	if _, err := m.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("empty err = %v", err)
	}
	if _, err := m.Generate("", "alice"); err == nil {
		t.Fatal("generated token without user id")
	}
}

func TestVerifyExpired(t *testing.T) {
	m := NewManager("secret", time.Minute)
	base := time.Now()
	m.now = func() time.Time { return base.Add(-time.Hour) }
	tok, err := m.Generate("u1", "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	m.now = func() time.Time { return base }
	if _, err := m.Verify(tok); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expired err = %v", err)
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=abc", nil)
	if got := TokenFromRequest(r); got != "abc" {
		t.Fatalf("query token = %q", got)
	}
	r.Header.Set("Authorization", "Bearer xyz")
	if got := TokenFromRequest(r); got != "xyz" {
		t.Fatalf("header token = %q", got)
	}
}
