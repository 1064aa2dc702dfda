package services

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/bastionhq/bastion/internal/config"
	"github.com/bastionhq/bastion/internal/models"
)

// DelayCalculator turns recent failure counts into a progressive
// authentication delay. It owns no state; the failure count is the only
// input and the configured curve the only policy.
type DelayCalculator struct {
	attempts *AttemptTracker
	cfg      *config.SecurityConfig
	logger   *slog.Logger
}

// NewDelayCalculator creates a new DelayCalculator
func NewDelayCalculator(attempts *AttemptTracker, cfg *config.SecurityConfig, logger *slog.Logger) *DelayCalculator {
	return &DelayCalculator{
		attempts: attempts,
		cfg:      cfg,
		logger:   logger,
	}
}

// DelayForFailures computes the delay for a given failure count:
// base * factor^count, capped at the configured maximum. Zero or negative
// counts yield no delay.
func (d *DelayCalculator) DelayForFailures(count int) time.Duration {
	if count < 1 {
		return 0
	}

	delay := time.Duration(float64(d.cfg.DelayBase) * math.Pow(d.cfg.DelayFactor, float64(count)))
	if delay > d.cfg.DelayMax || delay < 0 {
		return d.cfg.DelayMax
	}
	return delay
}

// Calculate returns the delay the caller should impose before processing
// the identifier's next authentication attempt. A store failure yields
// zero delay rather than an error.
func (d *DelayCalculator) Calculate(ctx context.Context, identifier string, identifierType models.IdentifierType) time.Duration {
	count, err := d.attempts.CountRecentFailures(ctx, identifier, identifierType, d.cfg.DelayWindow)
	if err != nil {
		d.logger.Error("failure count lookup failed, skipping delay",
			slog.String("identifier_type", string(identifierType)),
			slog.Any("error", err))
		return 0
	}

	return d.DelayForFailures(count)
}
