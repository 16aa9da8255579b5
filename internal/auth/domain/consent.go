package domain

import "time"

// UserConsent records that a user approved a client for an exact scope set.
// Scopes is normalised (deduplicated, sorted) and ScopeHash is derived from
// it, so the same request always lands on the same row.
type UserConsent struct {
	ID         string
	UserID     string
	ClientID   string
	ClientName string // filled by listings
	Scopes     []string
	ScopeHash  string
	CreatedAt  time.Time
	LastUsedAt time.Time
	RevokedAt  *time.Time
}
