package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/services"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// CaptchaServiceInterface defines the challenge operations the handler needs
type CaptchaServiceInterface interface {
	IssueChallenge(ctx context.Context, identifier string, identifierType models.IdentifierType) (*services.IssuedChallenge, error)
	VerifyChallenge(ctx context.Context, token, answer string) (*services.VerificationResult, error)
}

// CaptchaHandler serves challenge issuance and verification
type CaptchaHandler struct {
	service CaptchaServiceInterface
}

// NewCaptchaHandler creates a new CaptchaHandler
func NewCaptchaHandler(service CaptchaServiceInterface) *CaptchaHandler {
	return &CaptchaHandler{service: service}
}

// IssueChallengeRequest represents the request body for challenge issuance
type IssueChallengeRequest struct {
	Identifier     string `json:"identifier" validate:"required,max=320"`
	IdentifierType string `json:"identifier_type" validate:"required,oneof=ip email session"`
}

// IssueChallengeResponse carries the challenge token and prompt
type IssueChallengeResponse struct {
	Token     string    `json:"token"`
	Prompt    string    `json:"prompt"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyChallengeRequest represents the request body for verification
type VerifyChallengeRequest struct {
	Token  string `json:"token" validate:"required"`
	Answer string `json:"answer" validate:"required,max=64"`
}

// VerifyChallengeResponse reports the verification outcome
type VerifyChallengeResponse struct {
	Verified bool   `json:"verified"`
	Reason   string `json:"reason,omitempty"`
}

// IssueChallenge handles challenge creation for a flagged identifier
func (h *CaptchaHandler) IssueChallenge(w http.ResponseWriter, r *http.Request) {
	var req IssueChallengeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	issued, err := h.service.IssueChallenge(r.Context(), normalizeIdentifier(req.Identifier), models.IdentifierType(req.IdentifierType))
	if err != nil {
		if errors.Is(err, models.ErrInvalidIdentifierType) {
			pkghttp.WriteBadRequest(w, "Unsupported identifier type")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, IssueChallengeResponse{
		Token:     issued.Token,
		Prompt:    issued.Prompt,
		ExpiresAt: issued.ExpiresAt,
	})
}

// VerifyChallenge handles a verification try. Failed verification is a
// normal 200 with verified=false; only a degraded store yields a 5xx.
func (h *CaptchaHandler) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req VerifyChallengeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.VerifyChallenge(r.Context(), req.Token, req.Answer)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, VerifyChallengeResponse{
		Verified: result.Verified,
		Reason:   result.Reason,
	})
}
