package domain

import "time"

type User struct {
	ID              string
	Email           string
	Name            string
	PasswordHash    string // argon2 encoded; empty for federated-only users
	Role            Role
	TenantID        string // empty when the user belongs to no tenant
	Provider        string // set for federated users
	ProviderSubject string
	EmailVerified   bool
	TOTPSecret      string     // base32, set once enrollment starts
	TOTPConfirmedAt *time.Time // non-nil once a code was verified
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasTOTP reports whether login must present a TOTP code.
func (u User) HasTOTP() bool { return u.TOTPConfirmedAt != nil && u.TOTPSecret != "" }

// IsFederated reports whether the user came from an identity provider.
func (u User) IsFederated() bool { return u.Provider != "" }
