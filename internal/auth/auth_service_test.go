package auth

import (
	"testing"
	"time"
)

func newTestAuthService(t *testing.T) *AuthService {
	t.Helper()
	svc, err := NewAuthService([]byte("test-secret"), 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

func TestNewAuthService_RejectsBadConfig(t *testing.T) {
	if _, err := NewAuthService(nil, time.Minute, time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := NewAuthService([]byte("s"), 0, time.Hour); err == nil {
		t.Fatal("expected error for zero access ttl")
	}
	if _, err := NewAuthService([]byte("s"), time.Hour, time.Hour); err == nil {
		t.Fatal("expected error when access ttl is not shorter than refresh ttl")
	}
}

func TestGenerateTokenPair_RoundTrip(t *testing.T) {
	svc := newTestAuthService(t)

	pair, err := svc.GenerateTokenPair("8f14e45f-ea0f-4c55-8b0e-000000000001", "alice@example.com")
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	access, err := svc.ValidateToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if access.TokenType != "access" {
		t.Fatalf("expected access token type, got %q", access.TokenType)
	}
	if access.UserUUID != "8f14e45f-ea0f-4c55-8b0e-000000000001" {
		t.Fatalf("unexpected user uuid %q", access.UserUUID)
	}
	if access.Email != "alice@example.com" {
		t.Fatalf("unexpected email %q", access.Email)
	}

	refresh, err := svc.ValidateToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("validate refresh token: %v", err)
	}
	if refresh.TokenType != "refresh" {
		t.Fatalf("expected refresh token type, got %q", refresh.TokenType)
	}
	if refresh.ID == "" {
		t.Fatal("refresh token must carry a jti")
	}

	if !access.ExpiresAt.Time.Before(refresh.ExpiresAt.Time) {
		t.Fatal("access token must expire before refresh token")
	}
}

func TestValidateToken_RejectsWrongSecret(t *testing.T) {
	svc := newTestAuthService(t)
	other, err := NewAuthService([]byte("another-secret"), 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}

	pair, err := other.GenerateTokenPair("uuid", "bob@example.com")
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	if _, err := svc.ValidateToken(pair.AccessToken); err == nil {
		t.Fatal("expected validation failure for foreign signature")
	}
}

func TestValidateToken_RejectsEmpty(t *testing.T) {
	svc := newTestAuthService(t)
	if _, err := svc.ValidateToken(""); err == nil {
		t.Fatal("expected error for empty token")
	}
}
