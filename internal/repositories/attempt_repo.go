package repositories

import (
	"context"
	"time"

	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/models"
)

// AttemptRepository handles database operations for login attempts
type AttemptRepository struct {
	db *database.DB
}

// NewAttemptRepository creates a new AttemptRepository
func NewAttemptRepository(db *database.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// RecordAttempt inserts a login attempt row
func (r *AttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (identifier, identifier_type, success, ip_address, user_agent, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.Identifier,
		attempt.IdentifierType,
		attempt.Success,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.AttemptedAt,
	)

	return err
}

// CountRecentFailures returns the number of failed, uncleared attempts for an
// identifier within the trailing window starting at since
func (r *AttemptRepository) CountRecentFailures(ctx context.Context, identifier string, identifierType models.IdentifierType, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE identifier = $1 AND identifier_type = $2
		  AND success = false AND cleared = false AND attempted_at > $3
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, identifier, identifierType, since).Scan(&count)
	return count, err
}

// ClearFailures marks all uncleared failed attempts for an identifier as
// cleared. The rows remain for audit; only active counting stops seeing them.
func (r *AttemptRepository) ClearFailures(ctx context.Context, identifier string, identifierType models.IdentifierType) (int64, error) {
	query := `
		UPDATE login_attempts SET cleared = true
		WHERE identifier = $1 AND identifier_type = $2
		  AND success = false AND cleared = false
	`

	result, err := r.db.Pool.Exec(ctx, query, identifier, identifierType)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// GetOriginStats aggregates failed attempts from one source IP across all
// identifiers since the given time, for cross-account abuse detection.
// Served by the (ip_address, attempted_at) index.
func (r *AttemptRepository) GetOriginStats(ctx context.Context, ipAddress string, since time.Time) (*models.OriginWindowStats, error) {
	query := `
		SELECT COUNT(*), COUNT(DISTINCT identifier)
		FROM login_attempts
		WHERE ip_address = $1 AND success = false AND attempted_at > $2
	`

	var stats models.OriginWindowStats
	err := r.db.Pool.QueryRow(ctx, query, ipAddress, since).Scan(
		&stats.FailedAttempts,
		&stats.DistinctIdentifiers,
	)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// GetWindowStats aggregates the attempt history of one identifier since the
// given time, for anomaly detection
func (r *AttemptRepository) GetWindowStats(ctx context.Context, identifier string, identifierType models.IdentifierType, since time.Time) (*models.AttemptWindowStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(DISTINCT ip_address),
		       COALESCE(MIN(attempted_at), CURRENT_TIMESTAMP),
		       COALESCE(MAX(attempted_at), CURRENT_TIMESTAMP)
		FROM login_attempts
		WHERE identifier = $1 AND identifier_type = $2 AND attempted_at > $3
	`

	var stats models.AttemptWindowStats
	err := r.db.Pool.QueryRow(ctx, query, identifier, identifierType, since).Scan(
		&stats.TotalAttempts,
		&stats.DistinctIPs,
		&stats.FirstAttemptAt,
		&stats.LastAttemptAt,
	)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
