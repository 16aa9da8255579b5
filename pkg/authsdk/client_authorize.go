package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/google/go-querystring/query"
)

// PKCEChallenge is a verifier and its S256 challenge (RFC 7636). The
// challenge goes on the authorization request; the verifier stays with the
// client until the code is redeemed.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
	Method    string
}

// GeneratePKCEChallenge makes a 256-bit verifier and its S256 challenge.
func GeneratePKCEChallenge() (*PKCEChallenge, error) {
	verifier, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, fmt.Errorf("authsdk: PKCE verifier: %w", err)
	}
	return &PKCEChallenge{
		Verifier:  verifier,
		Challenge: cryptox.S256Challenge(verifier),
		Method:    cryptox.PKCEMethodS256,
	}, nil
}

// AuthorizeRequest is the query of an authorization request.
type AuthorizeRequest struct {
	ResponseType        string `url:"response_type"`
	ClientID            string `url:"client_id"`
	RedirectURI         string `url:"redirect_uri"`
	Scope               string `url:"scope,omitempty"`
	State               string `url:"state,omitempty"`
	CodeChallenge       string `url:"code_challenge,omitempty"`
	CodeChallengeMethod string `url:"code_challenge_method,omitempty"`
	Nonce               string `url:"nonce,omitempty"`
	Prompt              string `url:"prompt,omitempty"`
}

// NewAuthorizeRequest fills in a code-flow request.
func NewAuthorizeRequest(clientID, redirectURI, state string, scopes []string, pkce *PKCEChallenge) AuthorizeRequest {
	req := AuthorizeRequest{
		ResponseType: "code",
		ClientID:     clientID,
		RedirectURI:  redirectURI,
		Scope:        strings.Join(scopes, " "),
		State:        state,
	}
	if pkce != nil {
		req.CodeChallenge = pkce.Challenge
		req.CodeChallengeMethod = pkce.Method
	}
	return req
}

// ConsentDecision turns the request into the body of a consent decision.
func (r AuthorizeRequest) ConsentDecision(approved bool) ConsentDecisionRequest {
	return ConsentDecisionRequest{
		Approved:            approved,
		ResponseType:        r.ResponseType,
		ClientID:            r.ClientID,
		RedirectURI:         r.RedirectURI,
		Scope:               r.Scope,
		State:               r.State,
		CodeChallenge:       r.CodeChallenge,
		CodeChallengeMethod: r.CodeChallengeMethod,
		Nonce:               r.Nonce,
	}
}

// BuildAuthorizeURL is the URL a relying party sends the browser to.
//
//	pkce, _ := authsdk.GeneratePKCEChallenge()
//	target := client.BuildAuthorizeURL("web-app", "https://localhost/callback", state, []string{"openid"}, pkce)
//	// keep pkce.Verifier for ExchangeAuthorizationCode, then redirect to target
func (c *SDKClient) BuildAuthorizeURL(clientID, redirectURI, state string, scopes []string, pkce *PKCEChallenge) string {
	return c.AuthorizeURL(NewAuthorizeRequest(clientID, redirectURI, state, scopes, pkce))
}

// AuthorizeURL encodes req onto the authorization endpoint.
func (c *SDKClient) AuthorizeURL(req AuthorizeRequest) string {
	// Values only fails for non-struct input
	params, _ := query.Values(req)
	return c.BaseURL + "/oauth/authorize?" + params.Encode()
}

// AuthorizeResult is where the authorization endpoint sent the browser.
type AuthorizeResult struct {
	Location *url.URL

	// Code and State are set on a redirect back to the client.
	Code  string
	State string

	// Pending keys the paused request on a redirect to the login page.
	Pending string
}

// ConsentRequired reports whether the browser was sent to the consent page.
func (r *AuthorizeResult) ConsentRequired(consentPath string) bool {
	return r.Code == "" && r.Location != nil && r.Location.Path == consentPath
}

// Authorize plays the browser: it sends the authorization request with the
// session cookie (none when empty) and reports the redirect instead of
// following it. Error redirects and error responses come back as
// *OAuth2Error.
func (c *SDKClient) Authorize(ctx context.Context, sessionCookie string, req AuthorizeRequest) (*AuthorizeResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.AuthorizeURL(req), nil)
	if err != nil {
		return nil, fmt.Errorf("authsdk: build request: %w", err)
	}
	withSessionCookie(sessionCookie)(httpReq)

	resp, err := c.noRedirect().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("authsdk: authorize: %w", err)
	}
	if resp.StatusCode != http.StatusFound && resp.StatusCode != http.StatusSeeOther {
		return nil, checkStatus(resp, http.StatusFound)
	}
	resp.Body.Close()

	location, err := resp.Location()
	if err != nil {
		return nil, fmt.Errorf("authsdk: authorize redirect: %w", err)
	}

	q := location.Query()
	if err := callbackError(q, resp.StatusCode); err != nil {
		return nil, err
	}
	return &AuthorizeResult{
		Location: location,
		Code:     q.Get("code"),
		State:    q.Get("state"),
		Pending:  q.Get("pending"),
	}, nil
}

// AuthorizeAndExchange runs the whole code flow for a browser that is
// signed in and has consented, and returns a Session for the tokens.
func (c *SDKClient) AuthorizeAndExchange(
	ctx context.Context,
	sessionCookie, clientID, clientSecret, redirectURI string,
	scopes []string,
) (*Session, error) {
	pkce, err := GeneratePKCEChallenge()
	if err != nil {
		return nil, err
	}

	result, err := c.Authorize(ctx, sessionCookie, NewAuthorizeRequest(clientID, redirectURI, "", scopes, pkce))
	if err != nil {
		return nil, err
	}
	if result.Code == "" {
		return nil, errors.New("authsdk: authorization stopped at " + result.Location.String())
	}

	tokens, err := c.ExchangeAuthorizationCode(ctx, clientID, clientSecret, result.Code, redirectURI, pkce.Verifier)
	if err != nil {
		return nil, err
	}
	return newSession(c, clientID, clientSecret, tokens), nil
}

// ErrMissingCode is returned for a callback with neither code nor error.
var ErrMissingCode = errors.New("authsdk: callback missing authorization code")

// ParseAuthorizationCallback reads the code and state the authorization
// server redirected back with. An error redirect is returned as an
// *OAuth2Error, so errors.Is(err, authsdk.ErrAccessDenied) works. Callers
// must still compare state with the one they sent.
func ParseAuthorizationCallback(callbackURL string) (code, state string, err error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return "", "", fmt.Errorf("authsdk: parse callback: %w", err)
	}

	q := u.Query()
	if err := callbackError(q, http.StatusFound); err != nil {
		return "", "", err
	}
	if q.Get("code") == "" {
		return "", "", ErrMissingCode
	}
	return q.Get("code"), q.Get("state"), nil
}

func callbackError(q url.Values, status int) error {
	code := q.Get("error")
	if code == "" {
		return nil
	}
	return &OAuth2Error{StatusCode: status, Code: code, Description: q.Get("error_description")}
}
