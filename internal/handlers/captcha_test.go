package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bastionhq/bastion/internal/handlers"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/services"
	"github.com/stretchr/testify/assert"
)

func TestIssueChallenge_Success(t *testing.T) {
	expiresAt := time.Now().Add(10 * time.Minute)
	mock := &handlers.MockCaptchaService{
		IssueChallengeFunc: func(ctx context.Context, identifier string, identifierType models.IdentifierType) (*services.IssuedChallenge, error) {
			return &services.IssuedChallenge{
				Token:     "signed-token",
				Prompt:    "What is 3 + 14?",
				ExpiresAt: expiresAt,
			}, nil
		},
	}

	handler := handlers.NewCaptchaHandler(mock)
	req := handlers.NewTestRequest(t, "POST", "/v1/captcha/challenges", handlers.IssueChallengeRequest{
		Identifier:     "198.51.100.7",
		IdentifierType: "ip",
	})

	w := httptest.NewRecorder()
	handler.IssueChallenge(w, req)

	var resp handlers.IssueChallengeResponse
	handlers.AssertJSONResponse(t, w, 201, &resp)
	assert.Equal(t, "signed-token", resp.Token)
	assert.Equal(t, "What is 3 + 14?", resp.Prompt)
	assert.WithinDuration(t, expiresAt, resp.ExpiresAt, time.Second)
}

func TestIssueChallenge_RejectsUnknownType(t *testing.T) {
	handler := handlers.NewCaptchaHandler(&handlers.MockCaptchaService{})
	req := handlers.NewTestRequest(t, "POST", "/v1/captcha/challenges", handlers.IssueChallengeRequest{
		Identifier:     "someone",
		IdentifierType: "username",
	})

	w := httptest.NewRecorder()
	handler.IssueChallenge(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestVerifyChallenge_Verified(t *testing.T) {
	mock := &handlers.MockCaptchaService{
		VerifyChallengeFunc: func(ctx context.Context, token, answer string) (*services.VerificationResult, error) {
			return &services.VerificationResult{Verified: true}, nil
		},
	}

	handler := handlers.NewCaptchaHandler(mock)
	req := handlers.NewTestRequest(t, "POST", "/v1/captcha/verify", handlers.VerifyChallengeRequest{
		Token:  "signed-token",
		Answer: "17",
	})

	w := httptest.NewRecorder()
	handler.VerifyChallenge(w, req)

	var resp handlers.VerifyChallengeResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.Verified)
	assert.Empty(t, resp.Reason)
}

func TestVerifyChallenge_WrongAnswerIsNormal200(t *testing.T) {
	mock := &handlers.MockCaptchaService{
		VerifyChallengeFunc: func(ctx context.Context, token, answer string) (*services.VerificationResult, error) {
			return &services.VerificationResult{Verified: false, Reason: services.ReasonWrongAnswer}, nil
		},
	}

	handler := handlers.NewCaptchaHandler(mock)
	req := handlers.NewTestRequest(t, "POST", "/v1/captcha/verify", handlers.VerifyChallengeRequest{
		Token:  "signed-token",
		Answer: "999",
	})

	w := httptest.NewRecorder()
	handler.VerifyChallenge(w, req)

	var resp handlers.VerifyChallengeResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.False(t, resp.Verified)
	assert.Equal(t, "wrong_answer", resp.Reason)
}

func TestVerifyChallenge_StoreErrorIs500(t *testing.T) {
	mock := &handlers.MockCaptchaService{
		VerifyChallengeFunc: func(ctx context.Context, token, answer string) (*services.VerificationResult, error) {
			return nil, models.ErrStoreUnavailable
		},
	}

	handler := handlers.NewCaptchaHandler(mock)
	req := handlers.NewTestRequest(t, "POST", "/v1/captcha/verify", handlers.VerifyChallengeRequest{
		Token:  "signed-token",
		Answer: "17",
	})

	w := httptest.NewRecorder()
	handler.VerifyChallenge(w, req)

	handlers.AssertErrorResponse(t, w, 500, "internal_error")
}

func TestVerifyChallenge_MissingTokenRejected(t *testing.T) {
	handler := handlers.NewCaptchaHandler(&handlers.MockCaptchaService{})
	req := handlers.NewTestRequest(t, "POST", "/v1/captcha/verify", handlers.VerifyChallengeRequest{
		Answer: "17",
	})

	w := httptest.NewRecorder()
	handler.VerifyChallenge(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}
