package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/bastionhq/bastion/internal/cache"
	"github.com/bastionhq/bastion/internal/models"
)

// AttemptRepository defines the interface for login attempt persistence
type AttemptRepository interface {
	RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error
	CountRecentFailures(ctx context.Context, identifier string, identifierType models.IdentifierType, since time.Time) (int, error)
	ClearFailures(ctx context.Context, identifier string, identifierType models.IdentifierType) (int64, error)
}

// recordAttemptRetries is the number of extra tries given to a transient
// write failure before falling back to log-only behavior
const recordAttemptRetries = 2

// AttemptTracker records authentication attempts and answers windowed
// failure counts. Recording never blocks authentication: a persistence
// failure degrades threat-tracking precision, nothing more.
type AttemptTracker struct {
	repo   AttemptRepository
	counts *cache.CountCache
	logger *slog.Logger
}

// NewAttemptTracker creates a new AttemptTracker. The count cache may be
// nil, in which case every count goes to the store.
func NewAttemptTracker(repo AttemptRepository, counts *cache.CountCache, logger *slog.Logger) *AttemptTracker {
	return &AttemptTracker{
		repo:   repo,
		counts: counts,
		logger: logger,
	}
}

// RecordAttempt persists one authentication attempt. On a successful
// attempt, all prior uncleared failures for the identifier are cleared so
// the identifier is no longer under suspicion for counting purposes; the
// audit rows remain. Only an invalid identifier type produces an error,
// store failures are logged and swallowed.
func (t *AttemptTracker) RecordAttempt(ctx context.Context, identifier string, identifierType models.IdentifierType, success bool, ipAddress, userAgent string) error {
	if !identifierType.ValidForAttempt() {
		return models.ErrInvalidIdentifierType
	}

	attempt := &models.LoginAttempt{
		Identifier:     identifier,
		IdentifierType: identifierType,
		Success:        success,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		AttemptedAt:    time.Now(),
	}

	var err error
	for try := 0; try <= recordAttemptRetries; try++ {
		if err = t.repo.RecordAttempt(ctx, attempt); err == nil {
			break
		}
	}
	if err != nil {
		t.logger.Error("failed to record login attempt, continuing without it",
			slog.String("identifier_type", string(identifierType)),
			slog.Any("error", err))
	}

	if success {
		if _, err := t.repo.ClearFailures(ctx, identifier, identifierType); err != nil {
			t.logger.Error("failed to clear prior failures after successful attempt",
				slog.String("identifier_type", string(identifierType)),
				slog.Any("error", err))
		}
	}

	return nil
}

// CountRecentFailures returns the number of failed, uncleared attempts for
// an identifier within the trailing window. The window slides with the
// current time; the short-TTL cache only bounds read load, never
// correctness.
func (t *AttemptTracker) CountRecentFailures(ctx context.Context, identifier string, identifierType models.IdentifierType, window time.Duration) (int, error) {
	if count, ok := t.counts.Get(ctx, identifier, identifierType, window); ok {
		return count, nil
	}

	count, err := t.repo.CountRecentFailures(ctx, identifier, identifierType, time.Now().Add(-window))
	if err != nil {
		return 0, err
	}

	t.counts.Set(ctx, identifier, identifierType, window, count)
	return count, nil
}

// ClearFailures marks all uncleared failures for an identifier as cleared,
// used by manual unlock so the next attempt starts with a clean counter
func (t *AttemptTracker) ClearFailures(ctx context.Context, identifier string, identifierType models.IdentifierType) error {
	_, err := t.repo.ClearFailures(ctx, identifier, identifierType)
	return err
}
