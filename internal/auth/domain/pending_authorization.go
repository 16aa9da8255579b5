package domain

import "time"

// PendingAuthorization parks an authorization request while the user logs
// in. It is keyed by the fingerprint of an opaque value handed to the login
// page, and consumed exactly once.
type PendingAuthorization struct {
	KeyHash   string
	Query     string // the original authorize query, encoded
	ExpiresAt time.Time
	CreatedAt time.Time
}
