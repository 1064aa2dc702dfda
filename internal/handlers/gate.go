package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bastionhq/bastion/internal/models"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
)

// LockoutServiceInterface defines the lock operations the gate needs
type LockoutServiceInterface interface {
	CheckAndEnforceLock(ctx context.Context, identifier string, identifierType models.IdentifierType) (*models.LockStatus, error)
}

// BlockServiceInterface defines the block operations the gate needs
type BlockServiceInterface interface {
	IsBlocked(ctx context.Context, identifier string, identifierType models.IdentifierType) *models.BlockStatus
}

// DelayCalculatorInterface defines the delay operations the gate needs
type DelayCalculatorInterface interface {
	Calculate(ctx context.Context, identifier string, identifierType models.IdentifierType) time.Duration
}

// AttemptTrackerInterface defines the recording operations the gate needs
type AttemptTrackerInterface interface {
	RecordAttempt(ctx context.Context, identifier string, identifierType models.IdentifierType, success bool, ipAddress, userAgent string) error
}

// DetectorInterface defines the anomaly evaluation the gate needs
type DetectorInterface interface {
	Evaluate(ctx context.Context, identifier string, identifierType models.IdentifierType) bool
	EvaluateOrigin(ctx context.Context, ipAddress string)
}

// GateHandler serves the hot authentication path: the pre-attempt gate
// check and the attempt outcome report. Responses carry only generic
// reasons; internal lock and block reasons never leave the service.
type GateHandler struct {
	lockouts LockoutServiceInterface
	blocks   BlockServiceInterface
	delays   DelayCalculatorInterface
	tracker  AttemptTrackerInterface
	detector DetectorInterface
	ipConfig *pkghttp.IPConfig
}

// NewGateHandler creates a new GateHandler
func NewGateHandler(lockouts LockoutServiceInterface, blocks BlockServiceInterface, delays DelayCalculatorInterface, tracker AttemptTrackerInterface, detector DetectorInterface, ipConfig *pkghttp.IPConfig) *GateHandler {
	return &GateHandler{
		lockouts: lockouts,
		blocks:   blocks,
		delays:   delays,
		tracker:  tracker,
		detector: detector,
		ipConfig: ipConfig,
	}
}

// genericDenialReason is the only reason string the public surface emits
const genericDenialReason = "too many attempts"

// CheckGateRequest represents the request body for the pre-attempt gate check
type CheckGateRequest struct {
	Identifier     string `json:"identifier" validate:"required,max=320"`
	IdentifierType string `json:"identifier_type" validate:"required,oneof=email username ip user_id"`
}

// CheckGateResponse is the gate's verdict for one identifier
type CheckGateResponse struct {
	Allowed         bool       `json:"allowed"`
	Reason          string     `json:"reason,omitempty"`
	RetryAfterMs    int64      `json:"retry_after_ms,omitempty"`
	LockedUntil     *time.Time `json:"locked_until,omitempty"`
	CaptchaRequired bool       `json:"captcha_required"`
}

// RecordAttemptRequest represents the request body for reporting an attempt
// outcome
type RecordAttemptRequest struct {
	Identifier     string `json:"identifier" validate:"required,max=320"`
	IdentifierType string `json:"identifier_type" validate:"required,oneof=email username ip"`
	Success        bool   `json:"success"`
	IPAddress      string `json:"ip_address" validate:"omitempty,ip"`
	UserAgent      string `json:"user_agent" validate:"omitempty,max=1024"`
}

// RecordAttemptResponse acknowledges a recorded attempt
type RecordAttemptResponse struct {
	Recorded        bool `json:"recorded"`
	CaptchaRequired bool `json:"captcha_required"`
}

// Check handles the pre-attempt gate check: block first, then lock, then
// progressive delay. The most restrictive gate wins.
func (h *GateHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckGateRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	identifier := normalizeIdentifier(req.Identifier)
	identifierType := models.IdentifierType(req.IdentifierType)
	clientIP := pkghttp.ExtractClientIP(r, h.ipConfig)

	resp := CheckGateResponse{Allowed: true}

	// Blocks first: the calling IP, then the identifier itself.
	if status := h.blocks.IsBlocked(r.Context(), clientIP, models.IdentifierIP); status.Blocked {
		writeGateDenial(w, &resp, status.ExpiresAt, 0)
		return
	}
	if status := h.blocks.IsBlocked(r.Context(), identifier, identifierType); status.Blocked {
		writeGateDenial(w, &resp, status.ExpiresAt, 0)
		return
	}

	if identifierType.ValidForLock() {
		lockStatus, err := h.lockouts.CheckAndEnforceLock(r.Context(), identifier, identifierType)
		if err != nil {
			if errors.Is(err, models.ErrInvalidIdentifierType) {
				pkghttp.WriteBadRequest(w, "Unsupported identifier type")
				return
			}
			pkghttp.WriteInternalError(w, "Internal server error")
			return
		}
		if lockStatus.Locked {
			until := lockStatus.ExpiresAt
			writeGateDenial(w, &resp, &until, lockStatus.RemainingTime)
			return
		}
	}

	if delay := h.delays.Calculate(r.Context(), identifier, identifierType); delay > 0 {
		resp.RetryAfterMs = delay.Milliseconds()
	}
	resp.CaptchaRequired = h.detector.Evaluate(r.Context(), identifier, identifierType)

	writeJSON(w, http.StatusOK, resp)
}

// RecordAttempt handles the attempt outcome report. Failures feed the
// detector; its verdict tells the caller whether to demand a CAPTCHA on
// the next attempt.
func (h *GateHandler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req RecordAttemptRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	identifier := normalizeIdentifier(req.Identifier)
	identifierType := models.IdentifierType(req.IdentifierType)

	ipAddress := req.IPAddress
	if ipAddress == "" {
		ipAddress = pkghttp.ExtractClientIP(r, h.ipConfig)
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = r.Header.Get("User-Agent")
	}

	if err := h.tracker.RecordAttempt(r.Context(), identifier, identifierType, req.Success, ipAddress, userAgent); err != nil {
		if errors.Is(err, models.ErrInvalidIdentifierType) {
			pkghttp.WriteBadRequest(w, "Unsupported identifier type")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := RecordAttemptResponse{Recorded: true}
	if !req.Success {
		resp.CaptchaRequired = h.detector.Evaluate(r.Context(), identifier, identifierType)
		h.detector.EvaluateOrigin(r.Context(), ipAddress)
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeGateDenial(w http.ResponseWriter, resp *CheckGateResponse, until *time.Time, remaining time.Duration) {
	resp.Allowed = false
	resp.Reason = genericDenialReason
	resp.LockedUntil = until
	if remaining > 0 {
		resp.RetryAfterMs = remaining.Milliseconds()
	} else if until != nil {
		resp.RetryAfterMs = time.Until(*until).Milliseconds()
	}

	writeJSON(w, http.StatusOK, *resp)
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
