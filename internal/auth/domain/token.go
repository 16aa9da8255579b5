package domain

import "time"

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"

// Token is one issued access/refresh pair. Both halves are stored only as
// fingerprints; the plaintext exists in the token response and nowhere else.
type Token struct {
	ID               string
	AccessTokenHash  string
	RefreshTokenHash string // empty when no refresh token was issued
	UserID           string
	ClientID         string
	Scope            string
	TokenType        string
	SessionID        string
	AMR              []string
	AuthTime         time.Time
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	RevokedAt        *time.Time
	CreatedAt        time.Time
}

// AccessActive reports whether the access half is usable at now.
func (t Token) AccessActive(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.AccessExpiresAt)
}

// RefreshActive reports whether the refresh half is usable at now.
func (t Token) RefreshActive(now time.Time) bool {
	return t.RevokedAt == nil && t.RefreshTokenHash != "" && now.Before(t.RefreshExpiresAt)
}

// TokenPair is what the token endpoint returns.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	TokenType    string
	ExpiresIn    time.Duration
	Scope        string
}
