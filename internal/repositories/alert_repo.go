package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// AlertRepository handles database operations for security alerts
type AlertRepository struct {
	db *database.DB
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *database.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

const alertColumns = `id, identifier, identifier_type, alert_type, reason, severity, metadata, created_at, reviewed, reviewed_at, reviewed_by, action_taken`

func scanAlertRow(row pgx.Row) (*models.SecurityAlert, error) {
	var alert models.SecurityAlert

	err := row.Scan(
		&alert.ID, &alert.Identifier, &alert.IdentifierType, &alert.AlertType,
		&alert.Reason, &alert.Severity, &alert.Metadata, &alert.CreatedAt,
		&alert.Reviewed, &alert.ReviewedAt, &alert.ReviewedBy, &alert.ActionTaken,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &alert, nil
}

func scanAlertRows(rows pgx.Rows) ([]*models.SecurityAlert, error) {
	defer rows.Close()

	alerts := make([]*models.SecurityAlert, 0)
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security alert rows: %w", err)
	}

	return alerts, nil
}

// Create inserts a new security alert
func (r *AlertRepository) Create(ctx context.Context, alert *models.SecurityAlert) (*models.SecurityAlert, error) {
	query := `
		INSERT INTO security_alerts (identifier, identifier_type, alert_type, reason, severity, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + alertColumns + `
	`

	return scanAlertRow(r.db.Pool.QueryRow(ctx, query,
		alert.Identifier, alert.IdentifierType, alert.AlertType,
		alert.Reason, alert.Severity, alert.Metadata, alert.CreatedAt,
	))
}

// ExistsRecent reports whether an alert of the given type was already raised
// for the identifier since the given time. Used for alert deduplication.
func (r *AlertRepository) ExistsRecent(ctx context.Context, identifier string, identifierType models.IdentifierType, alertType string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM security_alerts
			WHERE identifier = $1 AND identifier_type = $2 AND alert_type = $3 AND created_at > $4
		)
	`

	var exists bool
	err := r.db.Pool.QueryRow(ctx, query, identifier, identifierType, alertType, since).Scan(&exists)
	return exists, err
}

// ListUnreviewed returns alerts awaiting human review, oldest first
func (r *AlertRepository) ListUnreviewed(ctx context.Context, limit, offset int) ([]*models.SecurityAlert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM security_alerts
		WHERE reviewed = false
		ORDER BY created_at ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query unreviewed alerts: %w", err)
	}

	return scanAlertRows(rows)
}

// ListBySeverities returns alerts filtered to any of the given severities,
// newest first
func (r *AlertRepository) ListBySeverities(ctx context.Context, severities []string, limit, offset int) ([]*models.SecurityAlert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM security_alerts
		WHERE severity = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Pool.Query(ctx, query, pq.Array(severities), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts by severity: %w", err)
	}

	return scanAlertRows(rows)
}

// MarkReviewed records the reviewer's decision on an alert
func (r *AlertRepository) MarkReviewed(ctx context.Context, id, reviewedBy, actionTaken string, reviewedAt time.Time) error {
	query := `
		UPDATE security_alerts
		SET reviewed = true, reviewed_at = $2, reviewed_by = $3, action_taken = $4
		WHERE id = $1 AND reviewed = false
	`

	result, err := r.db.Pool.Exec(ctx, query, id, reviewedAt, reviewedBy, actionTaken)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
