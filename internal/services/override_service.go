package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/pkg/logger"
)

// OverrideRepository defines the interface for rate limit override
// persistence
type OverrideRepository interface {
	Upsert(ctx context.Context, o *models.RateLimitOverride) (*models.RateLimitOverride, error)
	Resolve(ctx context.Context, identifier string, identifierType models.IdentifierType, endpoint string, now time.Time) (*models.RateLimitOverride, error)
	Deactivate(ctx context.Context, id string) error
	ListActive(ctx context.Context, limit, offset int) ([]*models.RateLimitOverride, error)
}

// ResolvedLimit is the effective request limit for one caller on one
// endpoint. Overridden is false when the defaults apply.
type ResolvedLimit struct {
	MaxRequests   int  `json:"max_requests"`
	WindowMinutes int  `json:"window_minutes"`
	Overridden    bool `json:"overridden"`
}

// OverrideService manages per-identifier rate limit overrides. Overrides
// adjust request budgets only; they never exempt anyone from locks or
// blocks.
type OverrideService struct {
	overrides OverrideRepository
	audit     *logger.AuditLogger
	logger    *slog.Logger
}

// NewOverrideService creates a new OverrideService
func NewOverrideService(overrides OverrideRepository, audit *logger.AuditLogger, log *slog.Logger) *OverrideService {
	return &OverrideService{
		overrides: overrides,
		audit:     audit,
		logger:    log,
	}
}

// SetOverride creates or replaces the override for an identifier and
// optional endpoint pattern. An empty pattern means the override is
// global.
func (s *OverrideService) SetOverride(ctx context.Context, identifier string, identifierType models.IdentifierType, endpointPattern string, maxRequests, windowMinutes int, expiresAt *time.Time, reason, setBy string) (*models.RateLimitOverride, error) {
	if !identifierType.ValidForOverride() {
		return nil, models.ErrInvalidIdentifierType
	}
	if maxRequests < 1 || windowMinutes < 1 {
		return nil, models.ErrBadRequest
	}

	override := &models.RateLimitOverride{
		Identifier:     identifier,
		IdentifierType: identifierType,
		MaxRequests:    maxRequests,
		WindowMinutes:  windowMinutes,
		IsActive:       true,
		ExpiresAt:      expiresAt,
		Reason:         reason,
		CreatedAt:      time.Now(),
	}
	if endpointPattern != "" {
		override.EndpointPattern = &endpointPattern
	}

	created, err := s.overrides.Upsert(ctx, override)
	if err != nil {
		return nil, err
	}

	s.audit.LogAdminAction("override_set", setBy, map[string]string{
		"identifier_type":  string(identifierType),
		"endpoint_pattern": endpointPattern,
		"reason":           reason,
	})
	return created, nil
}

// RemoveOverride deactivates an override by ID
func (s *OverrideService) RemoveOverride(ctx context.Context, id, removedBy string) error {
	if err := s.overrides.Deactivate(ctx, id); err != nil {
		return err
	}

	s.audit.LogAdminAction("override_removed", removedBy, map[string]string{
		"override_id": id,
	})
	return nil
}

// ListOverrides returns active overrides for admin review
func (s *OverrideService) ListOverrides(ctx context.Context, limit, offset int) ([]*models.RateLimitOverride, error) {
	return s.overrides.ListActive(ctx, limit, offset)
}

// ResolveLimit returns the effective limit for an identifier on an
// endpoint against the given defaults. The most specific active override
// wins; with none, or with a degraded store, the defaults apply.
func (s *OverrideService) ResolveLimit(ctx context.Context, identifier string, identifierType models.IdentifierType, endpoint string, defaultMax, defaultWindowMinutes int) *ResolvedLimit {
	override, err := s.overrides.Resolve(ctx, identifier, identifierType, endpoint, time.Now())
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("override lookup failed, using defaults",
				slog.String("identifier_type", string(identifierType)),
				slog.Any("error", err))
		}
		return &ResolvedLimit{MaxRequests: defaultMax, WindowMinutes: defaultWindowMinutes}
	}

	return &ResolvedLimit{
		MaxRequests:   override.MaxRequests,
		WindowMinutes: override.WindowMinutes,
		Overridden:    true,
	}
}
