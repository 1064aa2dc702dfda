package models

import "time"

// DefaultLockReason is the reason recorded on automatically created locks
const DefaultLockReason = "Exceeded maximum login attempts"

// AccountLock is a timed deny-state on one identifier. At most one active
// lock may exist per (identifier, identifier_type) pair, enforced by a
// partial unique index in the store.
type AccountLock struct {
	ID             string         `db:"id" json:"id"`
	Identifier     string         `db:"identifier" json:"identifier"`
	IdentifierType IdentifierType `db:"identifier_type" json:"identifier_type"`
	Reason         string         `db:"reason" json:"reason"`
	LockedAt       time.Time      `db:"locked_at" json:"locked_at"`
	ExpiresAt      time.Time      `db:"expires_at" json:"expires_at"`
	UnlockedAt     *time.Time     `db:"unlocked_at" json:"unlocked_at,omitempty"`
	IsActive       bool           `db:"is_active" json:"is_active"`
	LockedBy       *string        `db:"locked_by" json:"locked_by,omitempty"` // set when manually imposed
}

// Expired reports whether the lock window has passed
func (l *AccountLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// LockStatus is the answer to "is this identifier locked right now?"
// RemainingTime is zero when Locked is false.
type LockStatus struct {
	Locked        bool
	Reason        string
	ExpiresAt     time.Time
	RemainingTime time.Duration
}
