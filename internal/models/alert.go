package models

import "time"

// Alert types raised by the activity detector and the retention sweeper
const (
	AlertTypeMultipleIPs        = "multiple_ips"
	AlertTypeAutomation         = "automated_attack"
	AlertTypeCredentialStuffing = "credential_stuffing"
	AlertTypeArchivedPattern    = "archived_pattern"
)

// SecurityAlert records a detected anomaly for human review. Created by the
// activity detector or the sweeper; mutated only by a reviewer marking it
// reviewed.
type SecurityAlert struct {
	ID             string            `db:"id" json:"id"`
	Identifier     string            `db:"identifier" json:"identifier"`
	IdentifierType IdentifierType    `db:"identifier_type" json:"identifier_type"`
	AlertType      string            `db:"alert_type" json:"alert_type"`
	Reason         string            `db:"reason" json:"reason"`
	Severity       Severity          `db:"severity" json:"severity"`
	Metadata       map[string]string `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	Reviewed       bool              `db:"reviewed" json:"reviewed"`
	ReviewedAt     *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy     *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ActionTaken    *string           `db:"action_taken" json:"action_taken,omitempty"`
}
