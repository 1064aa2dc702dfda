package services_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/services"
	"github.com/bastionhq/bastion/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newCaptchaService(repo services.CaptchaRepository, tokens services.TokenIssuer) *services.CaptchaService {
	log := testLogger()
	return services.NewCaptchaService(repo, tokens, newTestSecurityConfig(), logger.NewAuditLogger(log), log)
}

func hashAnswer(t *testing.T, answer string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(answer), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func claimsIssuer(jti string) *services.MockTokenIssuer {
	return &services.MockTokenIssuer{
		ValidateChallengeTokenFunc: func(tokenString string) (*models.ChallengeClaims, error) {
			claims := &models.ChallengeClaims{
				Type:           "challenge",
				Identifier:     "203.0.113.7",
				IdentifierType: string(models.IdentifierIP),
			}
			claims.ID = jti
			return claims, nil
		},
	}
}

func TestIssueChallenge_StoresHashedAnswerUnderJTI(t *testing.T) {
	var stored *models.CaptchaChallenge
	repo := &services.MockCaptchaRepository{
		CreateFunc: func(ctx context.Context, c *models.CaptchaChallenge) (*models.CaptchaChallenge, error) {
			stored = c
			return c, nil
		},
	}
	tokens := &services.MockTokenIssuer{
		GenerateChallengeTokenFunc: func(identifier string, identifierType models.IdentifierType, expiresAt time.Time) (string, string, error) {
			return "signed_token", "jti-42", nil
		},
	}

	service := newCaptchaService(repo, tokens)
	issued, err := service.IssueChallenge(context.Background(), "203.0.113.7", models.IdentifierIP)

	require.NoError(t, err)
	assert.Equal(t, "signed_token", issued.Token)
	assert.True(t, strings.HasPrefix(issued.Prompt, "What is "))
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), issued.ExpiresAt, 2*time.Second)

	require.NotNil(t, stored)
	assert.Equal(t, "jti-42", stored.ChallengeToken)
	assert.Equal(t, models.ChallengeTypeMath, stored.ChallengeType)
	assert.NotEmpty(t, stored.AnswerHash)
	assert.NotContains(t, issued.Prompt, stored.AnswerHash)
}

func TestIssueChallenge_RejectsInvalidIdentifierType(t *testing.T) {
	service := newCaptchaService(&services.MockCaptchaRepository{}, &services.MockTokenIssuer{})

	_, err := service.IssueChallenge(context.Background(), "user-1", models.IdentifierUserID)

	assert.ErrorIs(t, err, models.ErrInvalidIdentifierType)
}

func TestIssueAndVerifyChallenge_RoundTrip(t *testing.T) {
	// Use the real token manager so the verify path parses what issue signed.
	tokens := auth.NewTokenManager("test-secret-0123456789abcdef", time.Hour)

	var stored *models.CaptchaChallenge
	repo := &services.MockCaptchaRepository{
		CreateFunc: func(ctx context.Context, c *models.CaptchaChallenge) (*models.CaptchaChallenge, error) {
			stored = c
			return c, nil
		},
		GetByTokenFunc: func(ctx context.Context, token string) (*models.CaptchaChallenge, error) {
			if stored != nil && stored.ChallengeToken == token {
				return stored, nil
			}
			return nil, models.ErrNotFound
		},
		IncrementAttemptsFunc: func(ctx context.Context, token string) (int, error) {
			stored.Attempts++
			return stored.Attempts, nil
		},
	}

	service := newCaptchaService(repo, tokens)
	issued, err := service.IssueChallenge(context.Background(), "203.0.113.7", models.IdentifierIP)
	require.NoError(t, err)

	// Extract the expected answer from the prompt: "What is A + B?"
	var a, b int
	_, err = fmt.Sscanf(issued.Prompt, "What is %d + %d?", &a, &b)
	require.NoError(t, err)

	result, err := service.VerifyChallenge(context.Background(), issued.Token, strconv.Itoa(a+b))

	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Empty(t, result.Reason)
}

func TestVerifyChallenge_InvalidToken(t *testing.T) {
	service := newCaptchaService(&services.MockCaptchaRepository{}, &services.MockTokenIssuer{})

	result, err := service.VerifyChallenge(context.Background(), "garbage", "42")

	assert.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, services.ReasonInvalidToken, result.Reason)
}

func TestVerifyChallenge_WrongAnswer(t *testing.T) {
	challenge := services.NewTestChallenge("jti-42", hashAnswer(t, "17"), 5*time.Minute)
	repo := &services.MockCaptchaRepository{
		GetByTokenFunc: func(ctx context.Context, token string) (*models.CaptchaChallenge, error) {
			return challenge, nil
		},
	}

	service := newCaptchaService(repo, claimsIssuer("jti-42"))
	result, err := service.VerifyChallenge(context.Background(), "token", "18")

	assert.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, services.ReasonWrongAnswer, result.Reason)
}

func TestVerifyChallenge_Expired(t *testing.T) {
	challenge := services.NewTestChallenge("jti-42", hashAnswer(t, "17"), -1*time.Minute)
	repo := &services.MockCaptchaRepository{
		GetByTokenFunc: func(ctx context.Context, token string) (*models.CaptchaChallenge, error) {
			return challenge, nil
		},
	}

	service := newCaptchaService(repo, claimsIssuer("jti-42"))
	result, err := service.VerifyChallenge(context.Background(), "token", "17")

	assert.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, services.ReasonExpired, result.Reason)
}

func TestVerifyChallenge_AlreadyUsed(t *testing.T) {
	challenge := services.NewTestChallenge("jti-42", hashAnswer(t, "17"), 5*time.Minute)
	challenge.Verified = true
	repo := &services.MockCaptchaRepository{
		GetByTokenFunc: func(ctx context.Context, token string) (*models.CaptchaChallenge, error) {
			return challenge, nil
		},
	}

	service := newCaptchaService(repo, claimsIssuer("jti-42"))
	result, err := service.VerifyChallenge(context.Background(), "token", "17")

	assert.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, services.ReasonAlreadyUsed, result.Reason)
}

func TestVerifyChallenge_AttemptCapExceeded(t *testing.T) {
	repo := &services.MockCaptchaRepository{
		IncrementAttemptsFunc: func(ctx context.Context, token string) (int, error) {
			return 6, nil
		},
	}

	service := newCaptchaService(repo, claimsIssuer("jti-42"))
	result, err := service.VerifyChallenge(context.Background(), "token", "17")

	assert.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, services.ReasonTooManyAttempts, result.Reason)
}

func TestVerifyChallenge_EveryCallCountsAnAttempt(t *testing.T) {
	attempts := 0
	challenge := services.NewTestChallenge("jti-42", hashAnswer(t, "17"), 5*time.Minute)
	repo := &services.MockCaptchaRepository{
		GetByTokenFunc: func(ctx context.Context, token string) (*models.CaptchaChallenge, error) {
			return challenge, nil
		},
		IncrementAttemptsFunc: func(ctx context.Context, token string) (int, error) {
			attempts++
			return attempts, nil
		},
	}

	service := newCaptchaService(repo, claimsIssuer("jti-42"))
	for i := 0; i < 3; i++ {
		_, err := service.VerifyChallenge(context.Background(), "token", "wrong")
		require.NoError(t, err)
	}

	assert.Equal(t, 3, attempts)
}

func TestVerifyChallenge_ConsumptionRaceReportsAlreadyUsed(t *testing.T) {
	challenge := services.NewTestChallenge("jti-42", hashAnswer(t, "17"), 5*time.Minute)
	repo := &services.MockCaptchaRepository{
		GetByTokenFunc: func(ctx context.Context, token string) (*models.CaptchaChallenge, error) {
			return challenge, nil
		},
		MarkVerifiedFunc: func(ctx context.Context, token string, verifiedAt time.Time) (bool, error) {
			return false, nil
		},
	}

	service := newCaptchaService(repo, claimsIssuer("jti-42"))
	result, err := service.VerifyChallenge(context.Background(), "token", "17")

	assert.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, services.ReasonAlreadyUsed, result.Reason)
}

func TestVerifyChallenge_StoreErrorReportsUnavailable(t *testing.T) {
	repo := &services.MockCaptchaRepository{
		IncrementAttemptsFunc: func(ctx context.Context, token string) (int, error) {
			return 0, errors.New("connection refused")
		},
	}

	service := newCaptchaService(repo, claimsIssuer("jti-42"))
	result, err := service.VerifyChallenge(context.Background(), "token", "17")

	assert.Error(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, services.ReasonUnavailable, result.Reason)
}

func TestVerifyChallenge_UnknownJTIReportsInvalidToken(t *testing.T) {
	repo := &services.MockCaptchaRepository{
		IncrementAttemptsFunc: func(ctx context.Context, token string) (int, error) {
			return 0, models.ErrNotFound
		},
	}

	service := newCaptchaService(repo, claimsIssuer("jti-42"))
	result, err := service.VerifyChallenge(context.Background(), "token", "17")

	assert.NoError(t, err)
	assert.False(t, result.Verified)
	assert.Equal(t, services.ReasonInvalidToken, result.Reason)
}
