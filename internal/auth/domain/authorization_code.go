package domain

import "time"

// AuthorizationCode represents an OAuth 2.0 authorization code issuance.
// Only the fingerprint of the code is stored; redeeming deletes the row.
type AuthorizationCode struct {
	CodeHash            string
	ClientID            string
	UserID              string
	Scope               string // space-delimited, as requested
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	SessionID           string
	AMR                 []string
	AuthTime            time.Time
	ExpiresAt           time.Time
	CreatedAt           time.Time
}

// IsExpired reports whether the code can no longer be redeemed.
func (c AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
