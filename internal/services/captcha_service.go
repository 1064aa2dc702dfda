package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/bastionhq/bastion/internal/config"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/pkg/logger"
	"golang.org/x/crypto/bcrypt"
)

// CaptchaRepository defines the interface for CAPTCHA challenge persistence
type CaptchaRepository interface {
	Create(ctx context.Context, c *models.CaptchaChallenge) (*models.CaptchaChallenge, error)
	GetByToken(ctx context.Context, token string) (*models.CaptchaChallenge, error)
	IncrementAttempts(ctx context.Context, token string) (int, error)
	MarkVerified(ctx context.Context, token string, verifiedAt time.Time) (bool, error)
}

// TokenIssuer defines the token operations the CAPTCHA service needs
type TokenIssuer interface {
	GenerateChallengeToken(identifier string, identifierType models.IdentifierType, expiresAt time.Time) (token string, jti string, err error)
	ValidateChallengeToken(tokenString string) (*models.ChallengeClaims, error)
}

// IssuedChallenge is what the caller presents to the end user: the signed
// token to hand back later and the human-readable prompt. The answer never
// leaves the service.
type IssuedChallenge struct {
	Token     string
	Prompt    string
	ExpiresAt time.Time
}

// VerificationResult reports a verification outcome. Reason carries a
// machine-readable code when Verified is false; internal errors never
// surface here.
type VerificationResult struct {
	Verified bool
	Reason   string
}

// Verification failure reason codes
const (
	ReasonInvalidToken    = "invalid_token"
	ReasonExpired         = "expired"
	ReasonAlreadyUsed     = "already_used"
	ReasonTooManyAttempts = "too_many_attempts"
	ReasonWrongAnswer     = "wrong_answer"
	ReasonUnavailable     = "verification_unavailable"
)

// CaptchaService issues and verifies locally generated human-verification
// challenges. The challenge token is a signed JWT; the stored row, keyed by
// the token's jti, holds the bcrypt answer hash and the single-use state.
type CaptchaService struct {
	repo   CaptchaRepository
	tokens TokenIssuer
	cfg    *config.SecurityConfig
	audit  *logger.AuditLogger
	logger *slog.Logger
}

// NewCaptchaService creates a new CaptchaService
func NewCaptchaService(repo CaptchaRepository, tokens TokenIssuer, cfg *config.SecurityConfig, audit *logger.AuditLogger, log *slog.Logger) *CaptchaService {
	return &CaptchaService{
		repo:   repo,
		tokens: tokens,
		cfg:    cfg,
		audit:  audit,
		logger: log,
	}
}

// IssueChallenge generates a fresh math challenge for an identifier.
// Issuing a new challenge never invalidates earlier ones; each expires or
// is consumed on its own.
func (s *CaptchaService) IssueChallenge(ctx context.Context, identifier string, identifierType models.IdentifierType) (*IssuedChallenge, error) {
	if !identifierType.ValidForChallenge() {
		return nil, models.ErrInvalidIdentifierType
	}

	prompt, answer, err := generateMathChallenge()
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge: %w", err)
	}

	answerHash, err := bcrypt.GenerateFromPassword([]byte(answer), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash challenge answer: %w", err)
	}

	now := time.Now()
	expiresAt := now.Add(s.cfg.ChallengeTTL)

	token, jti, err := s.tokens.GenerateChallengeToken(identifier, identifierType, expiresAt)
	if err != nil {
		return nil, err
	}

	challenge := &models.CaptchaChallenge{
		Identifier:     identifier,
		IdentifierType: identifierType,
		ChallengeToken: jti,
		ChallengeType:  models.ChallengeTypeMath,
		AnswerHash:     string(answerHash),
		IssuedAt:       now,
		ExpiresAt:      expiresAt,
	}

	if _, err := s.repo.Create(ctx, challenge); err != nil {
		return nil, err
	}

	s.audit.LogChallengeEvent("challenge_issued", identifier, string(identifierType), true)

	return &IssuedChallenge{
		Token:     token,
		Prompt:    prompt,
		ExpiresAt: expiresAt,
	}, nil
}

// VerifyChallenge checks an answer against a previously issued challenge.
// Every call consumes one attempt, including ones that fail for other
// reasons afterwards. The result is always a VerificationResult; only a
// degraded store produces an error alongside a failed result.
func (s *CaptchaService) VerifyChallenge(ctx context.Context, token, answer string) (*VerificationResult, error) {
	claims, err := s.tokens.ValidateChallengeToken(token)
	if err != nil {
		return &VerificationResult{Verified: false, Reason: ReasonInvalidToken}, nil
	}

	jti := claims.ID
	now := time.Now()

	attempts, err := s.repo.IncrementAttempts(ctx, jti)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &VerificationResult{Verified: false, Reason: ReasonInvalidToken}, nil
		}
		s.logger.Error("challenge attempt increment failed",
			slog.Any("error", err))
		return &VerificationResult{Verified: false, Reason: ReasonUnavailable}, err
	}

	if attempts > s.cfg.ChallengeMaxAttempts {
		s.audit.LogChallengeEvent("challenge_attempts_exceeded", claims.Identifier, claims.IdentifierType, false)
		return &VerificationResult{Verified: false, Reason: ReasonTooManyAttempts}, nil
	}

	challenge, err := s.repo.GetByToken(ctx, jti)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &VerificationResult{Verified: false, Reason: ReasonInvalidToken}, nil
		}
		s.logger.Error("challenge lookup failed",
			slog.Any("error", err))
		return &VerificationResult{Verified: false, Reason: ReasonUnavailable}, err
	}

	if challenge.Verified {
		return &VerificationResult{Verified: false, Reason: ReasonAlreadyUsed}, nil
	}
	if !now.Before(challenge.ExpiresAt) {
		return &VerificationResult{Verified: false, Reason: ReasonExpired}, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(challenge.AnswerHash), []byte(answer)) != nil {
		s.audit.LogChallengeEvent("challenge_failed", challenge.Identifier, string(challenge.IdentifierType), false)
		return &VerificationResult{Verified: false, Reason: ReasonWrongAnswer}, nil
	}

	consumed, err := s.repo.MarkVerified(ctx, jti, now)
	if err != nil {
		s.logger.Error("challenge consumption failed",
			slog.Any("error", err))
		return &VerificationResult{Verified: false, Reason: ReasonUnavailable}, err
	}
	if !consumed {
		// A concurrent verification won the race.
		return &VerificationResult{Verified: false, Reason: ReasonAlreadyUsed}, nil
	}

	s.audit.LogChallengeEvent("challenge_verified", challenge.Identifier, string(challenge.IdentifierType), true)
	return &VerificationResult{Verified: true}, nil
}

// generateMathChallenge produces a simple addition prompt with single or
// double digit operands, and its expected answer
func generateMathChallenge() (prompt, answer string, err error) {
	a, err := randomInt(90)
	if err != nil {
		return "", "", err
	}
	b, err := randomInt(90)
	if err != nil {
		return "", "", err
	}

	left, right := a+1, b+9
	return fmt.Sprintf("What is %d + %d?", left, right), strconv.FormatInt(left+right, 10), nil
}

func randomInt(max int64) (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}
