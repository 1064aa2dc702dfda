package auth

import (
	"testing"
	"time"

	"github.com/bastionhq/bastion/internal/models"
)

func TestChallengeToken_RoundTrip(t *testing.T) {
	tm := newTestTokenManager()

	token, jti, err := tm.GenerateChallengeToken("user@example.com", models.IdentifierEmail, time.Now().Add(10*time.Minute))
	if err != nil {
		t.Fatalf("GenerateChallengeToken() = %v", err)
	}
	if jti == "" {
		t.Fatal("jti should not be empty")
	}

	claims, err := tm.ValidateChallengeToken(token)
	if err != nil {
		t.Fatalf("ValidateChallengeToken() = %v", err)
	}
	if claims.ID != jti {
		t.Errorf("claims.ID = %q, want %q", claims.ID, jti)
	}
	if claims.Identifier != "user@example.com" {
		t.Errorf("Identifier = %q", claims.Identifier)
	}
	if claims.IdentifierType != "email" {
		t.Errorf("IdentifierType = %q", claims.IdentifierType)
	}
}

func TestChallengeToken_ExpiredRejected(t *testing.T) {
	tm := newTestTokenManager()

	token, _, err := tm.GenerateChallengeToken("user@example.com", models.IdentifierEmail, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("GenerateChallengeToken() = %v", err)
	}

	if _, err := tm.ValidateChallengeToken(token); err == nil {
		t.Error("expired challenge token should be rejected")
	}
}

func TestChallengeToken_WrongSecretRejected(t *testing.T) {
	tm := newTestTokenManager()
	other := NewTokenManager("another-secret-32-characters-ok!", time.Hour)

	token, _, err := tm.GenerateChallengeToken("user@example.com", models.IdentifierEmail, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("GenerateChallengeToken() = %v", err)
	}

	if _, err := other.ValidateChallengeToken(token); err == nil {
		t.Error("token signed with a different secret should be rejected")
	}
}

func TestAdminToken_RejectedAsChallengeToken(t *testing.T) {
	tm := newTestTokenManager()

	token, err := tm.GenerateAdminToken("secops@example.com")
	if err != nil {
		t.Fatalf("GenerateAdminToken() = %v", err)
	}

	if _, err := tm.ValidateChallengeToken(token); err == nil {
		t.Error("admin tokens must not validate as challenge tokens")
	}
}
