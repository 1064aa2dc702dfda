package models

import "time"

// LoginAttempt represents a single authentication attempt. Rows are immutable
// once written except for the Cleared flag, which is flipped when the
// identifier authenticates successfully or when the sweeper archives the row.
type LoginAttempt struct {
	ID             string         `db:"id"`
	Identifier     string         `db:"identifier"`
	IdentifierType IdentifierType `db:"identifier_type"`
	Success        bool           `db:"success"`
	IPAddress      string         `db:"ip_address"`
	UserAgent      string         `db:"user_agent"`
	AttemptedAt    time.Time      `db:"attempted_at"`
	Cleared        bool           `db:"cleared"`
}

// AttemptWindowStats aggregates the recent attempt history of one identifier,
// used by the suspicious activity detector
type AttemptWindowStats struct {
	TotalAttempts  int
	DistinctIPs    int
	FirstAttemptAt time.Time
	LastAttemptAt  time.Time
}

// MeanInterval returns the mean gap between consecutive attempts in the
// window. For chronologically ordered attempts this is simply the span
// divided by the number of gaps. Returns 0 when fewer than two attempts
// exist.
func (s AttemptWindowStats) MeanInterval() time.Duration {
	if s.TotalAttempts < 2 {
		return 0
	}
	span := s.LastAttemptAt.Sub(s.FirstAttemptAt)
	return span / time.Duration(s.TotalAttempts-1)
}

// OriginWindowStats aggregates recent failed attempts originating from one
// source IP across all identifiers, used to spot cross-account sprays that
// no per-identifier window can see
type OriginWindowStats struct {
	FailedAttempts      int
	DistinctIdentifiers int
}

// FailureCluster describes a long-retained group of failed attempts from one
// identifier, summarized by the sweeper before the raw rows are deleted
type FailureCluster struct {
	Identifier     string
	IdentifierType IdentifierType
	AttemptCount   int
	OldestAttempt  time.Time
	NewestAttempt  time.Time
}
