package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bastionhq/bastion/internal/config"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/pkg/logger"
)

// LockRepository defines the interface for account lock persistence
type LockRepository interface {
	GetActiveLock(ctx context.Context, identifier string, identifierType models.IdentifierType) (*models.AccountLock, error)
	CreateLock(ctx context.Context, lock *models.AccountLock) (*models.AccountLock, error)
	Deactivate(ctx context.Context, identifier string, identifierType models.IdentifierType, unlockedAt time.Time) error
	ListActive(ctx context.Context, limit, offset int) ([]*models.AccountLock, error)
}

// LockoutService enforces the account lock state machine. It holds no
// per-identifier state of its own; every decision is derived from the
// store at call time.
type LockoutService struct {
	locks    LockRepository
	attempts *AttemptTracker
	cfg      *config.SecurityConfig
	audit    *logger.AuditLogger
	logger   *slog.Logger
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(locks LockRepository, attempts *AttemptTracker, cfg *config.SecurityConfig, audit *logger.AuditLogger, log *slog.Logger) *LockoutService {
	return &LockoutService{
		locks:    locks,
		attempts: attempts,
		cfg:      cfg,
		audit:    audit,
		logger:   log,
	}
}

// CheckAndEnforceLock reads the identifier's lock state and, when the
// recent failure count has crossed the threshold without a lock existing
// yet, creates one in the same call. An expired lock reads as unlocked
// even before the sweeper deactivates the row. Store failures fail open:
// a degraded threat store must not take authentication down with it.
func (s *LockoutService) CheckAndEnforceLock(ctx context.Context, identifier string, identifierType models.IdentifierType) (*models.LockStatus, error) {
	if !identifierType.ValidForLock() {
		return nil, models.ErrInvalidIdentifierType
	}

	now := time.Now()

	lock, err := s.locks.GetActiveLock(ctx, identifier, identifierType)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("lock lookup failed, failing open",
			slog.String("identifier_type", string(identifierType)),
			slog.Any("error", err))
		return &models.LockStatus{Locked: false}, nil
	}

	if lock != nil {
		if !lock.Expired(now) {
			return lockedStatus(lock, now), nil
		}
		// Expired row the sweeper has not reaped yet. Release it now so
		// any new lock below is a fresh row with a future expiry rather
		// than this stale one read back through the conflict path.
		if err := s.locks.Deactivate(ctx, identifier, identifierType, now); err != nil && !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("stale lock release failed, failing open",
				slog.String("identifier_type", string(identifierType)),
				slog.Any("error", err))
			return &models.LockStatus{Locked: false}, nil
		}
	}

	count, err := s.attempts.CountRecentFailures(ctx, identifier, identifierType, s.cfg.LockoutWindow)
	if err != nil {
		s.logger.Error("failure count lookup failed, failing open",
			slog.String("identifier_type", string(identifierType)),
			slog.Any("error", err))
		return &models.LockStatus{Locked: false}, nil
	}

	if count < s.cfg.MaxLoginAttempts {
		return &models.LockStatus{Locked: false}, nil
	}

	created, err := s.createLock(ctx, identifier, identifierType, models.DefaultLockReason, s.cfg.LockoutDuration, nil)
	if err != nil {
		s.logger.Error("lock creation failed, failing open",
			slog.String("identifier_type", string(identifierType)),
			slog.Any("error", err))
		return &models.LockStatus{Locked: false}, nil
	}

	s.audit.LogLockEvent("account_locked", identifier, string(identifierType), created.Reason, "")
	return lockedStatus(created, now), nil
}

// LockAccount creates a lock administratively. Duration zero falls back
// to the configured lockout duration; locks always expire, only blocks
// can be permanent.
func (s *LockoutService) LockAccount(ctx context.Context, identifier string, identifierType models.IdentifierType, reason string, duration time.Duration, lockedBy string) (*models.AccountLock, error) {
	if !identifierType.ValidForLock() {
		return nil, models.ErrInvalidIdentifierType
	}
	if reason == "" {
		reason = models.DefaultLockReason
	}

	var by *string
	if lockedBy != "" {
		by = &lockedBy
	}

	lock, err := s.createLock(ctx, identifier, identifierType, reason, duration, by)
	if err != nil {
		return nil, err
	}

	s.audit.LogLockEvent("account_locked", identifier, string(identifierType), reason, lockedBy)
	return lock, nil
}

// UnlockAccount deactivates the active lock and clears the failure
// counter, so the next failed attempt does not immediately re-lock
func (s *LockoutService) UnlockAccount(ctx context.Context, identifier string, identifierType models.IdentifierType, unlockedBy string) error {
	if !identifierType.ValidForLock() {
		return models.ErrInvalidIdentifierType
	}

	if err := s.locks.Deactivate(ctx, identifier, identifierType, time.Now()); err != nil {
		return err
	}

	if err := s.attempts.ClearFailures(ctx, identifier, identifierType); err != nil {
		s.logger.Error("failed to clear failures after unlock",
			slog.String("identifier_type", string(identifierType)),
			slog.Any("error", err))
	}

	s.audit.LogLockEvent("account_unlocked", identifier, string(identifierType), "", unlockedBy)
	return nil
}

// ListActiveLocks returns currently active locks for admin review
func (s *LockoutService) ListActiveLocks(ctx context.Context, limit, offset int) ([]*models.AccountLock, error) {
	return s.locks.ListActive(ctx, limit, offset)
}

func (s *LockoutService) createLock(ctx context.Context, identifier string, identifierType models.IdentifierType, reason string, duration time.Duration, lockedBy *string) (*models.AccountLock, error) {
	now := time.Now()
	if duration <= 0 {
		duration = s.cfg.LockoutDuration
	}

	lock := &models.AccountLock{
		Identifier:     identifier,
		IdentifierType: identifierType,
		Reason:         reason,
		LockedAt:       now,
		ExpiresAt:      now.Add(duration),
		IsActive:       true,
		LockedBy:       lockedBy,
	}

	return s.locks.CreateLock(ctx, lock)
}

func lockedStatus(lock *models.AccountLock, now time.Time) *models.LockStatus {
	return &models.LockStatus{
		Locked:        true,
		Reason:        lock.Reason,
		ExpiresAt:     lock.ExpiresAt,
		RemainingTime: lock.ExpiresAt.Sub(now),
	}
}
