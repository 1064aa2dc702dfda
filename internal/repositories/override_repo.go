package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/jackc/pgx/v5"
)

// OverrideRepository handles database operations for rate limit overrides
type OverrideRepository struct {
	db *database.DB
}

// NewOverrideRepository creates a new OverrideRepository
func NewOverrideRepository(db *database.DB) *OverrideRepository {
	return &OverrideRepository{db: db}
}

const overrideColumns = `id, identifier, identifier_type, endpoint_pattern, max_requests, window_minutes, is_active, expires_at, reason, created_at`

func scanOverrideRow(row pgx.Row) (*models.RateLimitOverride, error) {
	var o models.RateLimitOverride

	err := row.Scan(
		&o.ID, &o.Identifier, &o.IdentifierType, &o.EndpointPattern,
		&o.MaxRequests, &o.WindowMinutes, &o.IsActive, &o.ExpiresAt,
		&o.Reason, &o.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &o, nil
}

// Upsert creates or replaces the override for (identifier, type, pattern)
func (r *OverrideRepository) Upsert(ctx context.Context, o *models.RateLimitOverride) (*models.RateLimitOverride, error) {
	query := `
		INSERT INTO rate_limit_overrides (identifier, identifier_type, endpoint_pattern, max_requests, window_minutes, is_active, expires_at, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, true, $6, $7, $8)
		ON CONFLICT (identifier, identifier_type, COALESCE(endpoint_pattern, ''))
		DO UPDATE SET max_requests = EXCLUDED.max_requests,
		              window_minutes = EXCLUDED.window_minutes,
		              is_active = true,
		              expires_at = EXCLUDED.expires_at,
		              reason = EXCLUDED.reason
		RETURNING ` + overrideColumns + `
	`

	return scanOverrideRow(r.db.Pool.QueryRow(ctx, query,
		o.Identifier, o.IdentifierType, o.EndpointPattern,
		o.MaxRequests, o.WindowMinutes, o.ExpiresAt, o.Reason, o.CreatedAt,
	))
}

// Resolve returns the most specific active, unexpired override for an
// identifier and endpoint. Endpoint-scoped overrides beat global ones.
// Returns ErrNotFound when no override applies.
func (r *OverrideRepository) Resolve(ctx context.Context, identifier string, identifierType models.IdentifierType, endpoint string, now time.Time) (*models.RateLimitOverride, error) {
	query := `
		SELECT ` + overrideColumns + `
		FROM rate_limit_overrides
		WHERE identifier = $1 AND identifier_type = $2
		  AND (endpoint_pattern = $3 OR endpoint_pattern IS NULL)
		  AND is_active = true
		  AND (expires_at IS NULL OR expires_at > $4)
		ORDER BY endpoint_pattern NULLS LAST
		LIMIT 1
	`

	return scanOverrideRow(r.db.Pool.QueryRow(ctx, query, identifier, identifierType, endpoint, now))
}

// Deactivate ends an override by ID
func (r *OverrideRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE rate_limit_overrides SET is_active = false WHERE id = $1 AND is_active = true`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListActive returns active overrides for the ops surface, newest first
func (r *OverrideRepository) ListActive(ctx context.Context, limit, offset int) ([]*models.RateLimitOverride, error) {
	query := `
		SELECT ` + overrideColumns + `
		FROM rate_limit_overrides
		WHERE is_active = true
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	overrides := make([]*models.RateLimitOverride, 0)
	for rows.Next() {
		o, err := scanOverrideRow(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}
