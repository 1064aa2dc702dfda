package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/jackc/pgx/v5"
)

// LockRepository handles database operations for account locks
type LockRepository struct {
	db *database.DB
}

// NewLockRepository creates a new LockRepository
func NewLockRepository(db *database.DB) *LockRepository {
	return &LockRepository{db: db}
}

const lockColumns = `id, identifier, identifier_type, reason, locked_at, expires_at, unlocked_at, is_active, locked_by`

func scanLockRow(row pgx.Row) (*models.AccountLock, error) {
	var lock models.AccountLock

	err := row.Scan(
		&lock.ID, &lock.Identifier, &lock.IdentifierType, &lock.Reason,
		&lock.LockedAt, &lock.ExpiresAt, &lock.UnlockedAt, &lock.IsActive, &lock.LockedBy,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &lock, nil
}

// GetActiveLock returns the active lock for an identifier, or ErrNotFound.
// Expiry is not evaluated here; callers decide what an expired lock means.
func (r *LockRepository) GetActiveLock(ctx context.Context, identifier string, identifierType models.IdentifierType) (*models.AccountLock, error) {
	query := `
		SELECT ` + lockColumns + `
		FROM account_locks
		WHERE identifier = $1 AND identifier_type = $2 AND is_active = true
	`

	return scanLockRow(r.db.Pool.QueryRow(ctx, query, identifier, identifierType))
}

// CreateLock inserts an active lock. Concurrent creation for the same
// identifier is resolved by the partial unique index: the loser of the race
// gets back the winner's row instead of a duplicate. An expired active row
// the sweeper has not reaped yet is released and the insert retried, so the
// caller never receives a lock that already ran out.
func (r *LockRepository) CreateLock(ctx context.Context, lock *models.AccountLock) (*models.AccountLock, error) {
	created, err := r.insertLock(ctx, lock)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	// Conflict: an active row already exists.
	existing, err := r.GetActiveLock(ctx, lock.Identifier, lock.IdentifierType)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		if !existing.Expired(lock.LockedAt) {
			return existing, nil
		}
		if err := r.Deactivate(ctx, lock.Identifier, lock.IdentifierType, lock.LockedAt); err != nil && !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	created, err = r.insertLock(ctx, lock)
	if err == nil {
		return created, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		// Lost a second race; the winner's row is live.
		return r.GetActiveLock(ctx, lock.Identifier, lock.IdentifierType)
	}
	return nil, err
}

func (r *LockRepository) insertLock(ctx context.Context, lock *models.AccountLock) (*models.AccountLock, error) {
	query := `
		INSERT INTO account_locks (identifier, identifier_type, reason, locked_at, expires_at, is_active, locked_by)
		VALUES ($1, $2, $3, $4, $5, true, $6)
		ON CONFLICT (identifier, identifier_type) WHERE is_active = true DO NOTHING
		RETURNING ` + lockColumns + `
	`

	return scanLockRow(r.db.Pool.QueryRow(ctx, query,
		lock.Identifier, lock.IdentifierType, lock.Reason,
		lock.LockedAt, lock.ExpiresAt, lock.LockedBy,
	))
}

// Deactivate ends the active lock for an identifier. Returns ErrNotFound
// when no active lock exists.
func (r *LockRepository) Deactivate(ctx context.Context, identifier string, identifierType models.IdentifierType, unlockedAt time.Time) error {
	query := `
		UPDATE account_locks
		SET is_active = false, unlocked_at = $3
		WHERE identifier = $1 AND identifier_type = $2 AND is_active = true
	`

	result, err := r.db.Pool.Exec(ctx, query, identifier, identifierType, unlockedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeactivateExpired ends every active lock whose window has passed
func (r *LockRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE account_locks
		SET is_active = false, unlocked_at = $1
		WHERE is_active = true AND expires_at <= $1
	`

	result, err := r.db.Pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ListActive returns active locks for the ops surface, newest first
func (r *LockRepository) ListActive(ctx context.Context, limit, offset int) ([]*models.AccountLock, error) {
	query := `
		SELECT ` + lockColumns + `
		FROM account_locks
		WHERE is_active = true
		ORDER BY locked_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locks := make([]*models.AccountLock, 0)
	for rows.Next() {
		lock, err := scanLockRow(rows)
		if err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}
