package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/jackc/pgx/v5"
)

// RetentionRepository owns the cross-table SQL behind retention sweeping:
// archiving and hard-deleting old login attempts, and summarizing failure
// clusters into security alerts before their raw rows disappear
type RetentionRepository struct {
	db *database.DB
}

// NewRetentionRepository creates a new RetentionRepository
func NewRetentionRepository(db *database.DB) *RetentionRepository {
	return &RetentionRepository{db: db}
}

// MarkAttemptsCleared archives attempts older than the cutoff
func (r *RetentionRepository) MarkAttemptsCleared(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `UPDATE login_attempts SET cleared = true WHERE attempted_at < $1 AND cleared = false`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// FindFailureClusters returns identifiers with more than minCount failed
// attempts, all older than the cutoff, so the sweeper can summarize them
// before hard deletion
func (r *RetentionRepository) FindFailureClusters(ctx context.Context, cutoff time.Time, minCount int) ([]models.FailureCluster, error) {
	query := `
		SELECT identifier, identifier_type, COUNT(*), MIN(attempted_at), MAX(attempted_at)
		FROM login_attempts
		WHERE attempted_at < $1 AND success = false
		GROUP BY identifier, identifier_type
		HAVING COUNT(*) > $2
	`

	rows, err := r.db.Pool.Query(ctx, query, cutoff, minCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query failure clusters: %w", err)
	}
	defer rows.Close()

	clusters := make([]models.FailureCluster, 0)
	for rows.Next() {
		var c models.FailureCluster
		if err := rows.Scan(&c.Identifier, &c.IdentifierType, &c.AttemptCount, &c.OldestAttempt, &c.NewestAttempt); err != nil {
			return nil, fmt.Errorf("failed to scan failure cluster: %w", err)
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failure cluster rows: %w", err)
	}

	return clusters, nil
}

// SummarizeAndDeleteCluster writes the summarizing alert and deletes the
// cluster's raw attempt rows in one transaction, so a crash between the two
// can never lose the pattern without leaving the rows behind
func (r *RetentionRepository) SummarizeAndDeleteCluster(ctx context.Context, cluster models.FailureCluster, cutoff time.Time, alert *models.SecurityAlert) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		insertQuery := `
			INSERT INTO security_alerts (identifier, identifier_type, alert_type, reason, severity, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		_, err := tx.Exec(ctx, insertQuery,
			alert.Identifier, alert.IdentifierType, alert.AlertType,
			alert.Reason, alert.Severity, alert.Metadata, alert.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to write summarizing alert: %w", err)
		}

		deleteQuery := `
			DELETE FROM login_attempts
			WHERE identifier = $1 AND identifier_type = $2 AND attempted_at < $3
		`
		_, err = tx.Exec(ctx, deleteQuery, cluster.Identifier, cluster.IdentifierType, cutoff)
		if err != nil {
			return fmt.Errorf("failed to delete cluster attempts: %w", err)
		}

		return nil
	})
}

// DeleteAttemptsOlderThan hard-deletes attempts past the retention horizon
func (r *RetentionRepository) DeleteAttemptsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM login_attempts WHERE attempted_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

// DeleteChallengesOlderThan removes CAPTCHA challenges past the retention
// horizon. Expired but recent challenges stay for audit.
func (r *RetentionRepository) DeleteChallengesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM captcha_challenges WHERE issued_at < $1`

	result, err := r.db.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
