package domain

import (
	"slices"
	"time"
)

// Grant types a client may be registered for.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// Client is a registered relying party. Clients are looked up by id within
// an environment tag, so a staging client id never authorizes against
// production.
type Client struct {
	ID                     string
	Name                   string
	Environment            string
	SecretHash             string // argon2id PHC; empty for public clients
	RedirectURIs           []string
	PostLogoutRedirectURIs []string
	GrantTypes             []string
	PKCERequired           bool
	Protected              bool // If true, client cannot be deleted (e.g., the platform client)
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsConfidential reports whether the client holds a secret.
func (c Client) IsConfidential() bool { return c.SecretHash != "" }

// AllowsRedirect matches uri exactly, byte for byte, against the registered
// redirect URIs. No normalisation, no prefix or wildcard matching.
func (c Client) AllowsRedirect(uri string) bool {
	return uri != "" && slices.Contains(c.RedirectURIs, uri)
}

// AllowsPostLogoutRedirect is AllowsRedirect for RP-initiated logout.
func (c Client) AllowsPostLogoutRedirect(uri string) bool {
	return uri != "" && slices.Contains(c.PostLogoutRedirectURIs, uri)
}

// AllowsGrant reports whether the client may use grant type gt.
func (c Client) AllowsGrant(gt string) bool {
	return slices.Contains(c.GrantTypes, gt)
}
