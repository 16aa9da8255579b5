package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTL constants for standard OAuth2/OIDC flows.
// These provide sensible security defaults but can be overridden per-service.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh tokens.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultIDTokenTTL is the default lifetime for OIDC id_tokens.
	DefaultIDTokenTTL = 15 * time.Minute

	// DefaultSessionTTL is how long a browser session cookie stays valid.
	DefaultSessionTTL = 12 * time.Hour
)

// Token uses. Every token we sign is stamped with one so a session cookie
// can never be replayed as a bearer token (and vice versa).
const (
	TokenUseAccess  = "access"
	TokenUseID      = "id"
	TokenUseSession = "session"
)

// AudienceSession is the audience of browser session tokens.
const AudienceSession = "session"

// Authentication method references (RFC 8176).
const (
	AMRPassword  = "pwd"
	AMROTP       = "otp"
	AMRFederated = "fed"
)

// Claims is the single claim shape for access tokens, id_tokens and
// session tokens. Fields irrelevant to a given use are left empty.
type Claims struct {
	jwt.RegisteredClaims

	// Use is one of the TokenUse* constants.
	Use string `json:"token_use,omitempty"`

	// Session ID
	SID string `json:"sid,omitempty"`

	// Space-delimited OAuth scope ("openid profile email")
	Scope string `json:"scope,omitempty"`

	// ClientID the token was issued to (access tokens)
	ClientID string `json:"client_id,omitempty"`

	// Authentication Methods Reference ["pwd","otp","fed"]
	AMR []string `json:"amr,omitempty"`

	/* OIDC id_token claims */

	Nonce             string           `json:"nonce,omitempty"`
	AuthTime          *jwt.NumericDate `json:"auth_time,omitempty"`
	Name              string           `json:"name,omitempty"`
	PreferredUsername string           `json:"preferred_username,omitempty"`
	Email             string           `json:"email,omitempty"`
	EmailVerified     *bool            `json:"email_verified,omitempty"`

	// TenantID is set when the subject belongs to a tenant.
	TenantID string `json:"tenant_id,omitempty"`
}

// NewAccessClaims builds the claims of an access token. Timestamps, issuer
// and jti are stamped by KeyManager.SignToken.
func NewAccessClaims(subject, clientID, scope, sid string, amr []string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			Audience: jwt.ClaimStrings{clientID},
		},
		Use:      TokenUseAccess,
		SID:      sid,
		Scope:    scope,
		ClientID: clientID,
		AMR:      amr,
	}
}

// IDTokenParams carries the identity facts an id_token may disclose.
type IDTokenParams struct {
	Subject           string
	ClientID          string
	Nonce             string
	AuthTime          time.Time
	Name              string
	PreferredUsername string
	Email             string
	EmailVerified     bool
	AMR               []string
}

// NewIDClaims builds OIDC id_token claims (aud is the client).
func NewIDClaims(p IDTokenParams) Claims {
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.Subject,
			Audience: jwt.ClaimStrings{p.ClientID},
		},
		Use:               TokenUseID,
		Nonce:             p.Nonce,
		Name:              p.Name,
		PreferredUsername: p.PreferredUsername,
		Email:             p.Email,
		AMR:               p.AMR,
	}
	if p.Email != "" {
		verified := p.EmailVerified
		c.EmailVerified = &verified
	}
	if !p.AuthTime.IsZero() {
		c.AuthTime = jwt.NewNumericDate(p.AuthTime)
	}
	return c
}

// NewSessionClaims builds the claims of a browser session token.
func NewSessionClaims(subject, sid string, amr []string, authTime time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			Audience: jwt.ClaimStrings{AudienceSession},
		},
		Use:      TokenUseSession,
		SID:      sid,
		AMR:      amr,
		AuthTime: jwt.NewNumericDate(authTime),
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// Scopes splits the space-delimited scope claim.
func (c *Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// HasScope reports whether the scope claim contains s.
func (c *Claims) HasScope(s string) bool {
	return slices.Contains(c.Scopes(), s)
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}

	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}

	return ErrAudience
}

// ValidateUse checks the token_use claim.
func (c *Claims) ValidateUse(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Use != expected {
		return ErrWrongUse
	}
	return nil
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't before nbf.
func (c *Claims) ValidateExpiry() error {
	return c.ValidateExpiryWithLeeway(0)
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *Claims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}
