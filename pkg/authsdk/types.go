package authsdk

import (
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
)

// SessionCookieName is the browser session cookie set after local login or
// federation. It holds a short-lived RS256 session token.
const SessionCookieName = "maturity_session"

// ============================================================================
// Internal Response Types (used for JSON unmarshaling)
// ============================================================================

// ErrorResponse represents a standard OAuth2 error response per RFC 6749.
// This is used internally for parsing HTTP error responses.
// Client code should use the OAuth2Error type from errors.go instead.
type ErrorResponse struct {
	// Error is the OAuth2 error code (e.g., "invalid_request", "invalid_grant")
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse represents the OAuth2 token endpoint response per RFC 6749.
type TokenResponse struct {
	// AccessToken is the JWT access token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque refresh token used to obtain new access tokens
	RefreshToken string `json:"refresh_token,omitempty"`

	// IDToken is the OIDC identity token, present when "openid" was granted
	IDToken string `json:"id_token,omitempty"`

	// TokenType is always "Bearer" per OAuth2 spec
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-delimited list of scopes granted to this token
	Scope string `json:"scope,omitempty"`
}

// IntrospectionResponse represents the RFC 7662 token introspection response.
// An inactive token only ever carries Active=false, whatever the reason.
type IntrospectionResponse struct {
	Active bool `json:"active"`

	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Iss       string `json:"iss,omitempty"`
}

// UserInfoResponse is the OIDC userinfo document. Only claims unlocked by the
// token's scopes are present.
type UserInfoResponse struct {
	Sub               string `json:"sub"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     *bool  `json:"email_verified,omitempty"`
	TenantID          string `json:"tenant_id,omitempty"`
}

// DiscoveryDocument is the OpenID Provider metadata served at
// /.well-known/openid-configuration.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	EndSessionEndpoint                string   `json:"end_session_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

// ============================================================================
// Consent Types
// ============================================================================

// ConsentPromptResponse describes the application asking for access, for
// rendering the consent screen.
type ConsentPromptResponse struct {
	ClientID    string   `json:"client_id"`
	ClientName  string   `json:"client_name"`
	Environment string   `json:"environment"`
	Scopes      []string `json:"scopes"`
	RedirectURI string   `json:"redirect_uri"`
}

// ConsentDecisionRequest is the user's answer plus the original authorization
// parameters, which the server validates again.
type ConsentDecisionRequest struct {
	Approved            bool   `json:"approved"`
	ResponseType        string `json:"response_type"`
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	Scope               string `json:"scope,omitempty"`
	State               string `json:"state,omitempty"`
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	Nonce               string `json:"nonce,omitempty"`
}

// RedirectResponse hands a URL back to the browser instead of a 302, for
// endpoints called from script.
type RedirectResponse struct {
	RedirectURL string `json:"redirect_url"`
}

// ConsentInfo is one active consent of the signed-in user.
type ConsentInfo struct {
	ID         string   `json:"id"`
	ClientID   string   `json:"client_id"`
	ClientName string   `json:"client_name"`
	Scopes     []string `json:"scopes"`
	CreatedAt  string   `json:"created_at"`
	LastUsedAt string   `json:"last_used_at"`
}

// ============================================================================
// Login Types
// ============================================================================

// LoginRequest authenticates with local credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	// TOTP is required once the account has a confirmed authenticator.
	TOTP string `json:"totp,omitempty"`

	// Pending is the key of a paused authorization request to resume.
	Pending string `json:"pending,omitempty"`
}

// LoginResponse tells the browser where to go next.
type LoginResponse struct {
	UserID      string `json:"user_id"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// TOTPEnrollResponse represents the response from TOTP enrollment.
type TOTPEnrollResponse struct {
	Secret  string `json:"secret" example:"JBSWY3DPEHPK3PXP"`
	URL     string `json:"url" example:"otpauth://totp/Maturity:user@example.com?secret=JBSWY3DPEHPK3PXP&issuer=Maturity"`
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}

// TOTPConfirmRequest proves possession of the enrolled authenticator.
type TOTPConfirmRequest struct {
	Code string `json:"code"`
}

// ============================================================================
// Client Types
// ============================================================================

// CreateClientRequest represents the request to register a relying party.
type CreateClientRequest struct {
	Name                   string   `json:"name"`
	RedirectURIs           []string `json:"redirect_uris"`
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris,omitempty"`
	GrantTypes             []string `json:"grant_types,omitempty"`

	// Confidential clients get a generated secret, returned once.
	Confidential bool `json:"confidential"`

	// PKCERequired defaults to true when omitted.
	PKCERequired *bool `json:"pkce_required,omitempty"`
}

// CreateClientResponse contains the created client's ID and secret (if any).
type CreateClientResponse struct {
	ClientID string `json:"client_id"`

	// ClientSecret is the plaintext secret, only ever returned here.
	ClientSecret string `json:"client_secret,omitempty"`
}

// ClientInfo represents a registered relying party.
type ClientInfo struct {
	ID                     string   `json:"id"`
	Name                   string   `json:"name"`
	RedirectURIs           []string `json:"redirect_uris"`
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris"`
	GrantTypes             []string `json:"grant_types"`
	PKCERequired           bool     `json:"pkce_required"`
	Confidential           bool     `json:"confidential"`
	Protected              bool     `json:"protected"`
	CreatedAt              string   `json:"created_at"`
}

// ListClientsResponse contains a list of OAuth2 clients.
type ListClientsResponse struct {
	Clients []ClientInfo `json:"clients"`
}

// ============================================================================
// Tenant Types
// ============================================================================

// AdminConsentURLResponse carries the provider URL a tenant administrator
// opens to approve this application for their whole organisation.
type AdminConsentURLResponse struct {
	URL string `json:"url"`
}

// AdminConsentStatus reports whether a tenant's admin consent is recorded.
type AdminConsentStatus struct {
	TenantID  string  `json:"tenant_id"`
	Granted   bool    `json:"granted"`
	GrantedAt *string `json:"granted_at,omitempty"`
}

// TenantUserInfo is a user as seen by a tenant administrator.
type TenantUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
	Provider      string `json:"provider,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse represents the response structure for health check endpoints.
// Used by both /livez and /readyz endpoints (readyz includes additional Checks field).
type HealthResponse struct {
	// Status indicates the overall health status (e.g., "ok")
	Status string `json:"status"`

	// Uptime is the service uptime duration as a string (e.g., "1h23m45s")
	Uptime string `json:"uptime,omitempty"`

	// Version is the service version string
	Version string `json:"version,omitempty"`

	// Checks contains readiness check results for critical dependencies (only for /readyz)
	Checks *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks represents the status of critical service dependencies.
type HealthChecks struct {
	// Database indicates the database connection status
	Database string `json:"database"`

	// Signer indicates the JWT signing capability status
	Signer string `json:"signer"`
}

// ============================================================================
// Key Types
// ============================================================================

// JWKSResponse contains the JSON Web Key Set.
type JWKSResponse jwtx.JWKS

// SigningKeyInfo represents a JWT signing key with its metadata.
type SigningKeyInfo struct {
	Kid       string  `json:"kid"`
	Algorithm string  `json:"algorithm"`
	Active    bool    `json:"active"`
	CreatedAt string  `json:"created_at"`
	RetiredAt *string `json:"retired_at,omitempty"`
}

// RotateKeyResponse represents the result of a key rotation operation.
type RotateKeyResponse struct {
	NewKey SigningKeyInfo   `json:"new_key"`
	Keys   []SigningKeyInfo `json:"keys"`
	Purged []string         `json:"purged,omitempty"`
}
