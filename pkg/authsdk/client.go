package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to the Maturity identity service. It performs the
// unauthenticated calls itself and hands out Sessions for the rest.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// CheckScopes makes Sessions refuse admin calls locally when the admin
	// scope was not granted. Tests switch it off to reach the server checks.
	CheckScopes bool
}

// Option configures an SDKClient.
type Option func(*SDKClient)

// WithHTTPClient replaces the default client, which has a 10 second timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *SDKClient) { c.HTTPClient = hc }
}

// NewSDKClient returns a client for the service at baseURL with local scope
// checks enabled.
func NewSDKClient(baseURL string, opts ...Option) *SDKClient {
	c := &SDKClient{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
		CheckScopes: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthenticateWithRefreshToken redeems a stored refresh token and returns a
// Session holding the new pair.
func (c *SDKClient) AuthenticateWithRefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*Session, error) {
	tr, err := c.RefreshGrant(ctx, clientID, clientSecret, refreshToken)
	if err != nil {
		return nil, err
	}
	return newSession(c, clientID, clientSecret, tr), nil
}

// NewSessionFromTokens wraps tokens obtained elsewhere. The Session refreshes
// them like any other.
func (c *SDKClient) NewSessionFromTokens(clientID, clientSecret string, tokens *TokenResponse) *Session {
	return newSession(c, clientID, clientSecret, tokens)
}

// noRedirect is a copy of the HTTP client that returns 3xx responses instead
// of following them, for inspecting authorization redirects.
func (c *SDKClient) noRedirect() *http.Client {
	hc := *c.HTTPClient
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &hc
}
