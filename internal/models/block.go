package models

import "time"

// Severity classifies how serious a block or alert is. Higher severities
// carry longer default block durations.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid reports whether the severity is a recognized level
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// DefaultBlockDuration returns the auto-expiry window for a block of this
// severity. Critical blocks never auto-expire (returns 0) and must be lifted
// manually unless the caller sets an explicit duration.
func (s Severity) DefaultBlockDuration() time.Duration {
	switch s {
	case SeverityLow:
		return 1 * time.Hour
	case SeverityMedium:
		return 24 * time.Hour
	case SeverityHigh:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// SecurityBlock is a timed deny-state on an arbitrary identifier class,
// independent of AccountLock. Multiple concurrent blocks on the same
// identifier are permitted; the query path returns the one with the furthest
// expiry.
type SecurityBlock struct {
	ID             string            `db:"id" json:"id"`
	Identifier     string            `db:"identifier" json:"identifier"`
	IdentifierType IdentifierType    `db:"identifier_type" json:"identifier_type"`
	Reason         string            `db:"reason" json:"reason"`
	Severity       Severity          `db:"severity" json:"severity"`
	BlockedAt      time.Time         `db:"blocked_at" json:"blocked_at"`
	ExpiresAt      *time.Time        `db:"expires_at" json:"expires_at,omitempty"` // nil = no auto-expiry
	IsActive       bool              `db:"is_active" json:"is_active"`
	BlockedBy      *string           `db:"blocked_by" json:"blocked_by,omitempty"`
	Metadata       map[string]string `db:"metadata" json:"metadata,omitempty"`
}

// BlockStatus is the answer to "is this identifier blocked right now?"
// ExpiresAt is nil for blocks with no auto-expiry.
type BlockStatus struct {
	Blocked       bool
	Reason        string
	Severity      Severity
	ExpiresAt     *time.Time
	RemainingTime time.Duration
}
