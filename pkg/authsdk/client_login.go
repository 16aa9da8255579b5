package authsdk

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/google/go-querystring/query"
)

// ErrNoSessionCookie is returned when a login succeeded but the server did
// not set the session cookie.
var ErrNoSessionCookie = errors.New("authsdk: login response carried no session cookie")

// Login authenticates with local credentials and returns the session cookie
// value together with where the browser should go next.
func (c *SDKClient) Login(ctx context.Context, req LoginRequest) (string, *LoginResponse, error) {
	resp, err := c.send(ctx, http.MethodPost, "/auth/login", req)
	if err != nil {
		return "", nil, err
	}

	var cookie string
	for _, ck := range resp.Cookies() {
		if ck.Name == SessionCookieName {
			cookie = ck.Value
		}
	}

	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return "", nil, err
	}
	if cookie == "" {
		return "", nil, ErrNoSessionCookie
	}
	return cookie, &out, nil
}

// Logout ends the browser session.
func (c *SDKClient) Logout(ctx context.Context, sessionCookie string) error {
	resp, err := c.send(ctx, http.MethodPost, "/auth/logout", nil, withSessionCookie(sessionCookie))
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// EnrollTOTP starts authenticator enrollment for the signed-in user.
func (c *SDKClient) EnrollTOTP(ctx context.Context, sessionCookie string) (*TOTPEnrollResponse, error) {
	return decodeAs[TOTPEnrollResponse](c.send(ctx, http.MethodPost, "/auth/mfa/totp/enroll", nil, withSessionCookie(sessionCookie)))
}

// ConfirmTOTP activates the enrolled authenticator. From then on Login
// requires a code.
func (c *SDKClient) ConfirmTOTP(ctx context.Context, sessionCookie, code string) error {
	resp, err := c.send(ctx, http.MethodPost, "/auth/mfa/totp/confirm", TOTPConfirmRequest{Code: code}, withSessionCookie(sessionCookie))
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// GetConsentPrompt describes the application behind an authorization
// request for the consent screen.
func (c *SDKClient) GetConsentPrompt(ctx context.Context, sessionCookie string, req AuthorizeRequest) (*ConsentPromptResponse, error) {
	params, err := query.Values(req)
	if err != nil {
		return nil, err
	}

	return decodeAs[ConsentPromptResponse](c.send(ctx, http.MethodGet, "/api/oauth/consent?"+params.Encode(), nil, withSessionCookie(sessionCookie)))
}

// DecideConsent submits the user's answer. The returned URL points back to
// the client with either a code or error=access_denied.
func (c *SDKClient) DecideConsent(ctx context.Context, sessionCookie string, decision ConsentDecisionRequest) (*url.URL, error) {
	resp, err := c.send(ctx, http.MethodPost, "/api/oauth/consent", decision, withSessionCookie(sessionCookie))
	if err != nil {
		return nil, err
	}

	var out RedirectResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return url.Parse(out.RedirectURL)
}

// ListConsents returns the signed-in user's active consents.
func (c *SDKClient) ListConsents(ctx context.Context, sessionCookie string) ([]ConsentInfo, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/oauth/consents", nil, withSessionCookie(sessionCookie))
	if err != nil {
		return nil, err
	}

	var out []ConsentInfo
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

// RevokeConsent withdraws one consent. The next authorization for that
// client asks again.
func (c *SDKClient) RevokeConsent(ctx context.Context, sessionCookie, consentID string) error {
	resp, err := c.send(ctx, http.MethodDelete, "/api/oauth/consents/"+url.PathEscape(consentID), nil, withSessionCookie(sessionCookie))
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}
