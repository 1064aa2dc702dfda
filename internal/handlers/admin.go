package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/services"
	pkghttp "github.com/bastionhq/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AdminLockoutServiceInterface defines the lock operations on the ops surface
type AdminLockoutServiceInterface interface {
	LockAccount(ctx context.Context, identifier string, identifierType models.IdentifierType, reason string, duration time.Duration, lockedBy string) (*models.AccountLock, error)
	UnlockAccount(ctx context.Context, identifier string, identifierType models.IdentifierType, unlockedBy string) error
	ListActiveLocks(ctx context.Context, limit, offset int) ([]*models.AccountLock, error)
}

// AdminBlockServiceInterface defines the block operations on the ops surface
type AdminBlockServiceInterface interface {
	BlockIdentifier(ctx context.Context, identifier string, identifierType models.IdentifierType, reason string, severity models.Severity, duration time.Duration, blockedBy string, metadata map[string]string) (*models.SecurityBlock, error)
	Unblock(ctx context.Context, identifier string, identifierType models.IdentifierType, unblockedBy string) error
	ListActiveBlocks(ctx context.Context, limit, offset int) ([]*models.SecurityBlock, error)
}

// AlertReviewServiceInterface defines the alert operations on the ops surface
type AlertReviewServiceInterface interface {
	ListUnreviewedAlerts(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error)
	ListAlertsBySeverities(ctx context.Context, severities []string, limit, offset int) ([]*models.SecurityAlert, error)
	ReviewAlert(ctx context.Context, id, reviewedBy, actionTaken string) error
}

// OverrideServiceInterface defines the override operations on the ops surface
type OverrideServiceInterface interface {
	SetOverride(ctx context.Context, identifier string, identifierType models.IdentifierType, endpointPattern string, maxRequests, windowMinutes int, expiresAt *time.Time, reason, setBy string) (*models.RateLimitOverride, error)
	RemoveOverride(ctx context.Context, id, removedBy string) error
	ListOverrides(ctx context.Context, limit, offset int) ([]*models.RateLimitOverride, error)
	ResolveLimit(ctx context.Context, identifier string, identifierType models.IdentifierType, endpoint string, defaultMax, defaultWindowMinutes int) *services.ResolvedLimit
}

// SweeperInterface defines the on-demand sweep trigger
type SweeperInterface interface {
	Sweep(ctx context.Context) *services.SweepResult
}

// AdminHandler serves the authenticated ops surface: manual locks and
// blocks, alert review, rate limit overrides, and on-demand sweeps
type AdminHandler struct {
	lockouts  AdminLockoutServiceInterface
	blocks    AdminBlockServiceInterface
	alerts    AlertReviewServiceInterface
	overrides OverrideServiceInterface
	sweeper   SweeperInterface
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(lockouts AdminLockoutServiceInterface, blocks AdminBlockServiceInterface, alerts AlertReviewServiceInterface, overrides OverrideServiceInterface, sweeper SweeperInterface) *AdminHandler {
	return &AdminHandler{
		lockouts:  lockouts,
		blocks:    blocks,
		alerts:    alerts,
		overrides: overrides,
		sweeper:   sweeper,
	}
}

// Request DTOs

// CreateLockRequest represents the request body for a manual lock
type CreateLockRequest struct {
	Identifier      string `json:"identifier" validate:"required,max=320"`
	IdentifierType  string `json:"identifier_type" validate:"required,oneof=email username user_id"`
	Reason          string `json:"reason" validate:"omitempty,max=500"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,gte=1,lte=525600"`
}

// RemoveLockRequest represents the request body for a manual unlock
type RemoveLockRequest struct {
	Identifier     string `json:"identifier" validate:"required,max=320"`
	IdentifierType string `json:"identifier_type" validate:"required,oneof=email username user_id"`
}

// CreateBlockRequest represents the request body for a manual block
type CreateBlockRequest struct {
	Identifier      string            `json:"identifier" validate:"required,max=320"`
	IdentifierType  string            `json:"identifier_type" validate:"required,oneof=email username ip user_id device_fingerprint api_key session"`
	Reason          string            `json:"reason" validate:"required,max=500"`
	Severity        string            `json:"severity" validate:"required,oneof=low medium high critical"`
	DurationMinutes int               `json:"duration_minutes" validate:"omitempty,gte=1,lte=525600"`
	Metadata        map[string]string `json:"metadata" validate:"omitempty,max=16"`
}

// RemoveBlockRequest represents the request body for a manual unblock
type RemoveBlockRequest struct {
	Identifier     string `json:"identifier" validate:"required,max=320"`
	IdentifierType string `json:"identifier_type" validate:"required,oneof=email username ip user_id device_fingerprint api_key session"`
}

// ReviewAlertRequest represents the request body for an alert review
type ReviewAlertRequest struct {
	ActionTaken string `json:"action_taken" validate:"required,max=500"`
}

// SetOverrideRequest represents the request body for a rate limit override
type SetOverrideRequest struct {
	Identifier      string     `json:"identifier" validate:"required,max=320"`
	IdentifierType  string     `json:"identifier_type" validate:"required,oneof=ip user_id api_key"`
	EndpointPattern string     `json:"endpoint_pattern" validate:"omitempty,max=200"`
	MaxRequests     int        `json:"max_requests" validate:"required,gte=1"`
	WindowMinutes   int        `json:"window_minutes" validate:"required,gte=1"`
	ExpiresAt       *time.Time `json:"expires_at"`
	Reason          string     `json:"reason" validate:"required,max=500"`
}

// Lock endpoints

// CreateLock handles a manual account lock
func (h *AdminHandler) CreateLock(w http.ResponseWriter, r *http.Request) {
	var req CreateLockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	lock, err := h.lockouts.LockAccount(r.Context(),
		normalizeIdentifier(req.Identifier), models.IdentifierType(req.IdentifierType),
		req.Reason, time.Duration(req.DurationMinutes)*time.Minute, adminActor(r))
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, lock)
}

// RemoveLock handles a manual unlock
func (h *AdminHandler) RemoveLock(w http.ResponseWriter, r *http.Request) {
	var req RemoveLockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.lockouts.UnlockAccount(r.Context(),
		normalizeIdentifier(req.Identifier), models.IdentifierType(req.IdentifierType), adminActor(r))
	if err != nil {
		writeAdminError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListLocks returns currently active locks
func (h *AdminHandler) ListLocks(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	locks, err := h.lockouts.ListActiveLocks(r.Context(), limit, offset)
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, locks)
}

// Block endpoints

// CreateBlock handles a manual security block
func (h *AdminHandler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	var req CreateBlockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	block, err := h.blocks.BlockIdentifier(r.Context(),
		normalizeIdentifier(req.Identifier), models.IdentifierType(req.IdentifierType),
		req.Reason, models.Severity(req.Severity),
		time.Duration(req.DurationMinutes)*time.Minute, adminActor(r), req.Metadata)
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, block)
}

// RemoveBlock handles a manual unblock
func (h *AdminHandler) RemoveBlock(w http.ResponseWriter, r *http.Request) {
	var req RemoveBlockRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.blocks.Unblock(r.Context(),
		normalizeIdentifier(req.Identifier), models.IdentifierType(req.IdentifierType), adminActor(r))
	if err != nil {
		writeAdminError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListBlocks returns currently active blocks
func (h *AdminHandler) ListBlocks(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	blocks, err := h.blocks.ListActiveBlocks(r.Context(), limit, offset)
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, blocks)
}

// Alert endpoints

// ListAlerts returns alerts for review. With a severity query parameter
// (comma-separated) it filters by severity; otherwise it returns
// unreviewed alerts, oldest first.
func (h *AdminHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	var (
		alerts []*models.SecurityAlert
		err    error
	)
	if raw := r.URL.Query().Get("severity"); raw != "" {
		alerts, err = h.alerts.ListAlertsBySeverities(r.Context(), strings.Split(raw, ","), limit, offset)
	} else {
		alerts, err = h.alerts.ListUnreviewedAlerts(r.Context(), limit, offset)
	}
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alerts)
}

// ReviewAlert records the reviewer's decision on an alert
func (h *AdminHandler) ReviewAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")
	if alertID == "" {
		pkghttp.WriteBadRequest(w, "Missing alert ID")
		return
	}

	var req ReviewAlertRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.alerts.ReviewAlert(r.Context(), alertID, adminActor(r), req.ActionTaken); err != nil {
		writeAdminError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Override endpoints

// SetOverride creates or replaces a rate limit override
func (h *AdminHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	var req SetOverrideRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	override, err := h.overrides.SetOverride(r.Context(),
		normalizeIdentifier(req.Identifier), models.IdentifierType(req.IdentifierType),
		req.EndpointPattern, req.MaxRequests, req.WindowMinutes,
		req.ExpiresAt, req.Reason, adminActor(r))
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, override)
}

// RemoveOverride deactivates an override by ID
func (h *AdminHandler) RemoveOverride(w http.ResponseWriter, r *http.Request) {
	overrideID := chi.URLParam(r, "id")
	if overrideID == "" {
		pkghttp.WriteBadRequest(w, "Missing override ID")
		return
	}

	if err := h.overrides.RemoveOverride(r.Context(), overrideID, adminActor(r)); err != nil {
		writeAdminError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListOverrides returns active overrides
func (h *AdminHandler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	overrides, err := h.overrides.ListOverrides(r.Context(), limit, offset)
	if err != nil {
		writeAdminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, overrides)
}

// ResolveOverride reports the effective limit for one caller on one
// endpoint, for ops inspection
func (h *AdminHandler) ResolveOverride(w http.ResponseWriter, r *http.Request) {
	identifier := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("identifier")))
	identifierType := models.IdentifierType(r.URL.Query().Get("identifier_type"))
	if identifier == "" || !identifierType.ValidForOverride() {
		pkghttp.WriteBadRequest(w, "Missing or invalid identifier")
		return
	}
	endpoint := r.URL.Query().Get("endpoint")

	defaultMax := 60
	if v, err := strconv.Atoi(r.URL.Query().Get("default_max")); err == nil && v > 0 {
		defaultMax = v
	}
	defaultWindow := 1
	if v, err := strconv.Atoi(r.URL.Query().Get("default_window_minutes")); err == nil && v > 0 {
		defaultWindow = v
	}

	limit := h.overrides.ResolveLimit(r.Context(), identifier, identifierType, endpoint, defaultMax, defaultWindow)
	writeJSON(w, http.StatusOK, limit)
}

// Sweep endpoint

// TriggerSweep runs one retention pass on demand
func (h *AdminHandler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	result := h.sweeper.Sweep(r.Context())
	writeJSON(w, http.StatusOK, result)
}

// Helpers

func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// adminActor returns the authenticated admin subject for audit attribution
func adminActor(r *http.Request) string {
	claims := auth.GetAdminFromContext(r)
	if claims == nil {
		return "unknown"
	}
	if claims.Subject != "" {
		return claims.Subject
	}
	return claims.ID
}

func writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidIdentifierType):
		pkghttp.WriteBadRequest(w, "Unsupported identifier type")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
