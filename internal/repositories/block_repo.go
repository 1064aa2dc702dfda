package repositories

import (
	"context"
	"time"

	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/jackc/pgx/v5"
)

// BlockRepository handles database operations for security blocks
type BlockRepository struct {
	db *database.DB
}

// NewBlockRepository creates a new BlockRepository
func NewBlockRepository(db *database.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

const blockColumns = `id, identifier, identifier_type, reason, severity, blocked_at, expires_at, is_active, blocked_by, metadata`

func scanBlockRow(row pgx.Row) (*models.SecurityBlock, error) {
	var block models.SecurityBlock

	err := row.Scan(
		&block.ID, &block.Identifier, &block.IdentifierType, &block.Reason,
		&block.Severity, &block.BlockedAt, &block.ExpiresAt, &block.IsActive,
		&block.BlockedBy, &block.Metadata,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &block, nil
}

// CreateBlock inserts an active security block
func (r *BlockRepository) CreateBlock(ctx context.Context, block *models.SecurityBlock) (*models.SecurityBlock, error) {
	query := `
		INSERT INTO security_blocks (identifier, identifier_type, reason, severity, blocked_at, expires_at, is_active, blocked_by, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, true, $7, $8)
		RETURNING ` + blockColumns + `
	`

	return scanBlockRow(r.db.Pool.QueryRow(ctx, query,
		block.Identifier, block.IdentifierType, block.Reason, block.Severity,
		block.BlockedAt, block.ExpiresAt, block.BlockedBy, block.Metadata,
	))
}

// GetStrongestActiveBlock returns the active, unexpired block with the
// furthest expiry for an identifier. Blocks without auto-expiry sort first.
// Returns ErrNotFound when the identifier is not blocked.
func (r *BlockRepository) GetStrongestActiveBlock(ctx context.Context, identifier string, identifierType models.IdentifierType, now time.Time) (*models.SecurityBlock, error) {
	query := `
		SELECT ` + blockColumns + `
		FROM security_blocks
		WHERE identifier = $1 AND identifier_type = $2 AND is_active = true
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY expires_at DESC NULLS FIRST
		LIMIT 1
	`

	return scanBlockRow(r.db.Pool.QueryRow(ctx, query, identifier, identifierType, now))
}

// Deactivate ends all active blocks on an identifier (manual override)
func (r *BlockRepository) Deactivate(ctx context.Context, identifier string, identifierType models.IdentifierType) (int64, error) {
	query := `
		UPDATE security_blocks
		SET is_active = false
		WHERE identifier = $1 AND identifier_type = $2 AND is_active = true
	`

	result, err := r.db.Pool.Exec(ctx, query, identifier, identifierType)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// DeactivateExpired ends every active block whose expiry has passed. Blocks
// without an expiry are untouched; only manual override lifts them.
func (r *BlockRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE security_blocks
		SET is_active = false
		WHERE is_active = true AND expires_at IS NOT NULL AND expires_at <= $1
	`

	result, err := r.db.Pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// ListActive returns active blocks for the ops surface, newest first
func (r *BlockRepository) ListActive(ctx context.Context, limit, offset int) ([]*models.SecurityBlock, error) {
	query := `
		SELECT ` + blockColumns + `
		FROM security_blocks
		WHERE is_active = true
		ORDER BY blocked_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blocks := make([]*models.SecurityBlock, 0)
	for rows.Next() {
		block, err := scanBlockRow(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, rows.Err()
}
