package auth

import (
	"fmt"
	"time"

	"github.com/bastionhq/bastion/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager signs and validates the two token kinds the service issues:
// CAPTCHA challenge tokens handed to untrusted callers, and bearer tokens
// for the administrative surface. Both are HMAC-signed with the service
// secret; challenge state (single-use, attempt count) lives in the store,
// keyed by the token's jti.
type TokenManager struct {
	secret           string
	adminTokenExpiry time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, adminTokenExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:           secret,
		adminTokenExpiry: adminTokenExpiry,
	}
}

// GenerateChallengeToken creates a signed challenge token. The returned jti
// is the handle under which the challenge row is stored.
func (tm *TokenManager) GenerateChallengeToken(identifier string, identifierType models.IdentifierType, expiresAt time.Time) (token string, jti string, err error) {
	jti = uuid.New().String()

	claims := &models.ChallengeClaims{
		Type:           "challenge",
		Identifier:     identifier,
		IdentifierType: string(identifierType),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tm.secret))
	if err != nil {
		return "", "", fmt.Errorf("failed to sign challenge token: %w", err)
	}

	return signed, jti, nil
}

// ValidateChallengeToken verifies a challenge token's signature and expiry
// and returns its claims
func (tm *TokenManager) ValidateChallengeToken(tokenString string) (*models.ChallengeClaims, error) {
	claims := &models.ChallengeClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, tm.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse challenge token: %w", err)
	}
	if !token.Valid {
		return nil, models.ErrUnauthorized
	}
	if claims.Type != "challenge" {
		return nil, fmt.Errorf("invalid token: wrong type %q", claims.Type)
	}

	return claims, nil
}

// GenerateAdminToken creates a bearer token for the ops surface
func (tm *TokenManager) GenerateAdminToken(subject string) (string, error) {
	claims := &models.AdminClaims{
		Type:    "admin",
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.adminTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}

	return signed, nil
}

// ValidateAdminToken verifies an ops-surface bearer token
func (tm *TokenManager) ValidateAdminToken(tokenString string) (*models.AdminClaims, error) {
	claims := &models.AdminClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, tm.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse admin token: %w", err)
	}
	if !token.Valid {
		return nil, models.ErrUnauthorized
	}
	if claims.Type != "admin" {
		return nil, fmt.Errorf("invalid token: wrong type %q", claims.Type)
	}

	return claims, nil
}

func (tm *TokenManager) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return []byte(tm.secret), nil
}
