package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Challenge types supported by the local challenge generator
const (
	ChallengeTypeMath = "math"
)

// CaptchaChallenge is a one-time human-verification gate. The answer is
// stored as a bcrypt hash; the plaintext leaves the process only inside the
// issued prompt. Expired, unverified challenges are inert but retained for
// audit.
type CaptchaChallenge struct {
	ID             string         `db:"id"`
	Identifier     string         `db:"identifier"`
	IdentifierType IdentifierType `db:"identifier_type"`
	ChallengeToken string         `db:"challenge_token"` // unique jti
	ChallengeType  string         `db:"challenge_type"`
	AnswerHash     string         `db:"answer_hash"`
	IssuedAt       time.Time      `db:"issued_at"`
	ExpiresAt      time.Time      `db:"expires_at"`
	Verified       bool           `db:"verified"`
	VerifiedAt     *time.Time     `db:"verified_at"`
	Attempts       int            `db:"attempts"`
}

// ChallengeClaims are the JWT claims embedded in an issued challenge token.
// The jti binds the token to its stored challenge row.
type ChallengeClaims struct {
	Type           string `json:"type"`
	Identifier     string `json:"identifier"`
	IdentifierType string `json:"identifier_type"`
	jwt.RegisteredClaims
}

// AdminClaims are the JWT claims carried by ops-surface bearer tokens
type AdminClaims struct {
	Type    string `json:"type"`
	Subject string `json:"sub_name,omitempty"`
	jwt.RegisteredClaims
}
