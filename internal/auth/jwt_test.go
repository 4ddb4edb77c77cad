package auth

import (
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		UserID: "user-1",
		Email:  "warga@example.id",
		Role:   "user",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if claims.UserID != "user-1" || claims.Email != "warga@example.id" || claims.Role != "user" {
		t.Fatalf("unexpected claims")
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("other-secret", token); err == nil {
		t.Fatalf("expected parse to fail with wrong secret")
	}
}
