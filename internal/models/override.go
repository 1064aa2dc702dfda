package models

import "time"

// RateLimitOverride carries a custom request limit for one identifier,
// optionally scoped to an endpoint pattern and optionally temporary.
// Unique on (identifier, identifier_type, endpoint_pattern).
type RateLimitOverride struct {
	ID              string         `db:"id" json:"id"`
	Identifier      string         `db:"identifier" json:"identifier"`
	IdentifierType  IdentifierType `db:"identifier_type" json:"identifier_type"`
	EndpointPattern *string        `db:"endpoint_pattern" json:"endpoint_pattern,omitempty"` // nil = global
	MaxRequests     int            `db:"max_requests" json:"max_requests"`
	WindowMinutes   int            `db:"window_minutes" json:"window_minutes"`
	IsActive        bool           `db:"is_active" json:"is_active"`
	ExpiresAt       *time.Time     `db:"expires_at" json:"expires_at,omitempty"` // nil = permanent
	Reason          string         `db:"reason" json:"reason"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// Effective reports whether the override should be applied at the given time
func (o *RateLimitOverride) Effective(now time.Time) bool {
	if !o.IsActive {
		return false
	}
	if o.ExpiresAt != nil && !now.Before(*o.ExpiresAt) {
		return false
	}
	return true
}
