package domain

import "time"

// SsoAuthState is the server side of an in-flight federated login. The
// state value travels through the identity provider; only its fingerprint
// is stored.
type SsoAuthState struct {
	StateHash       string
	Provider        string
	CodeVerifier    string
	RedirectURI     string
	PostLoginTarget string
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

// IsExpired reports whether the state is past its lifetime.
func (s SsoAuthState) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Identity is what an external identity provider asserted about a user
// after a successful federated login.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string

	// EmailVerified is nil when the provider made no claim either way.
	EmailVerified *bool

	// TenantID is the provider's directory (tenant) id, when it has one.
	TenantID string
}
