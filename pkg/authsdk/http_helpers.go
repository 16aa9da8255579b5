package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// requestOption decorates an outgoing request with credentials.
type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

// withSessionCookie attaches the browser session; an empty value sends none.
func withSessionCookie(value string) requestOption {
	return func(r *http.Request) {
		if value != "" {
			r.AddCookie(&http.Cookie{Name: SessionCookieName, Value: value})
		}
	}
}

func withBasicAuth(clientID, clientSecret string) requestOption {
	return func(r *http.Request) { r.SetBasicAuth(clientID, clientSecret) }
}

// send performs a request against the service. A url.Values body is sent
// form encoded, anything else non-nil as JSON.
func (c *SDKClient) send(ctx context.Context, method, path string, body any, opts ...requestOption) (*http.Response, error) {
	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case url.Values:
		reader, contentType = strings.NewReader(b.Encode()), "application/x-www-form-urlencoded"
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("authsdk: encode request: %w", err)
		}
		reader, contentType = bytes.NewReader(raw), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("authsdk: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authsdk: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// send performs a bearer-authenticated request after checking the granted
// scopes and refreshing the access token if it is about to expire.
func (s *Session) send(ctx context.Context, method, path string, body any, requiredScopes ...string) (*http.Response, error) {
	if err := s.checkScopes(requiredScopes...); err != nil {
		return nil, err
	}

	tok, err := s.validToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.send(ctx, method, path, body, withBearer(tok.AccessToken))
}

// decodeJSON closes resp and decodes it into target when the status is
// expected; otherwise it returns the server's error.
func decodeJSON(resp *http.Response, target any, expectedStatus int) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("authsdk: read response: %w", err)
	}
	if resp.StatusCode != expectedStatus {
		return parseErrorResponse(resp, body)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("authsdk: decode response: %w", err)
	}
	return nil
}

// decodeAs decodes a 200 response into a new T. It takes send's results
// directly: return decodeAs[T](c.send(...)).
func decodeAs[T any](resp *http.Response, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	var out T
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// checkStatus closes resp and returns the server's error unless the status
// is expected.
func checkStatus(resp *http.Response, expected int) error {
	defer resp.Body.Close()

	if resp.StatusCode == expected {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	if err := parseErrorResponse(resp, body); err != nil {
		return err
	}
	return fmt.Errorf("authsdk: unexpected status %d", resp.StatusCode)
}
