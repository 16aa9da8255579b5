package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/google/go-querystring/query"
)

// Error codes from RFC 6749, RFC 6750 and OpenID Connect Core.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeServerError             = "server_error"
	ErrorCodeInvalidToken            = "invalid_token"
	ErrorCodeLoginRequired           = "login_required"
	ErrorCodeInsufficientScope       = "insufficient_scope"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeConsentRequired         = "consent_required"
)

// OAuth2Error is an RFC 6749 error body together with its HTTP status. The
// server writes it and the SDK returns it, so both sides share one type.
type OAuth2Error struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *OAuth2Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// Is lets errors.Is match on the error code alone.
func (e *OAuth2Error) Is(target error) bool {
	t, ok := target.(*OAuth2Error)
	return ok && t.Code == e.Code
}

// WriteError writes e as an uncacheable JSON response.
func (e *OAuth2Error) WriteError(w http.ResponseWriter) {
	httpx.WriteJSON(w, e.StatusCode, e)
}

// WithDescription returns a copy of e with a more specific description.
// The predefined errors are shared and never mutated.
func (e *OAuth2Error) WithDescription(desc string) *OAuth2Error {
	c := *e
	c.Description = desc
	return &c
}

func oauthError(status int, code, desc string) *OAuth2Error {
	return &OAuth2Error{StatusCode: status, Code: code, Description: desc}
}

var (
	ErrInvalidRequest          = oauthError(http.StatusBadRequest, ErrorCodeInvalidRequest, "the request is malformed or missing required parameters")
	ErrInvalidClient           = oauthError(http.StatusUnauthorized, ErrorCodeInvalidClient, "invalid client")
	ErrInvalidGrant            = oauthError(http.StatusBadRequest, ErrorCodeInvalidGrant, "the authorization grant is invalid, expired or already used")
	ErrUnauthorizedClient      = oauthError(http.StatusBadRequest, ErrorCodeUnauthorizedClient, "the client is not authorized to use this grant type")
	ErrUnsupportedGrantType    = oauthError(http.StatusBadRequest, ErrorCodeUnsupportedGrantType, "grant type not supported")
	ErrInvalidScope            = oauthError(http.StatusBadRequest, ErrorCodeInvalidScope, "requested scope is invalid")
	ErrUnsupportedResponseType = oauthError(http.StatusBadRequest, ErrorCodeUnsupportedResponseType, "response type not supported")
	ErrServerError             = oauthError(http.StatusInternalServerError, ErrorCodeServerError, "internal server error")

	// ErrLoginRequired means the endpoint needs a browser session cookie.
	ErrLoginRequired = oauthError(http.StatusUnauthorized, ErrorCodeLoginRequired, "an authenticated session is required")

	// ErrInvalidToken means the bearer token is missing, malformed, expired
	// or revoked.
	ErrInvalidToken = oauthError(http.StatusUnauthorized, ErrorCodeInvalidToken, "the access token is missing, invalid, expired or revoked")

	ErrAccessDenied = oauthError(http.StatusForbidden, ErrorCodeAccessDenied, "access denied")

	// ErrConsentRequired answers prompt=none when consent would be needed.
	ErrConsentRequired = oauthError(http.StatusBadRequest, ErrorCodeConsentRequired, "user consent is required")
)

// errorRedirect is the query an authorization error is reported with when
// the user agent can safely go back to the client (RFC 6749 4.1.2.1).
type errorRedirect struct {
	Error       string `url:"error"`
	Description string `url:"error_description,omitempty"`
	State       string `url:"state,omitempty"`
}

// RedirectURL appends e to a registered redirect URI.
func (e *OAuth2Error) RedirectURL(redirectURI, state string) (string, error) {
	return AppendQuery(redirectURI, errorRedirect{Error: e.Code, Description: e.Description, State: state})
}

// AppendQuery encodes params with go-querystring and merges them into the
// query of base, keeping whatever base already carries.
func AppendQuery(base string, params any) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse redirect: %w", err)
	}
	extra, err := query.Values(params)
	if err != nil {
		return "", fmt.Errorf("encode redirect: %w", err)
	}

	q := u.Query()
	for k := range extra {
		q.Set(k, extra.Get(k))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseErrorResponse turns a non-2xx response into an *OAuth2Error. Bodies
// that are not OAuth2 errors, such as a proxy's HTML page, become
// server_error carrying the status text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		return oauthError(resp.StatusCode, er.Error, er.ErrorDescription)
	}
	return oauthError(resp.StatusCode, ErrorCodeServerError,
		fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
}
