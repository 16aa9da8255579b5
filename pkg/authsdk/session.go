package authsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// refreshSkew is how long before expiry a Session treats its access token
// as stale.
const refreshSkew = 30 * time.Second

// ErrNoRefreshToken is returned when the access token has expired and the
// grant did not include offline_access.
var ErrNoRefreshToken = errors.New("authsdk: access token expired and no refresh token available")

// MissingScopeError is returned before a request is sent when the session
// lacks scopes the endpoint requires and SDKClient.CheckScopes is set.
type MissingScopeError struct {
	Missing []string
}

func (e *MissingScopeError) Error() string {
	return "authsdk: missing required scope(s): " + strings.Join(e.Missing, ", ")
}

// Session holds the tokens of one grant and refreshes them on demand. It is
// safe for concurrent use; concurrent refreshes collapse into one, which
// matters because refresh tokens are single use.
type Session struct {
	client       *SDKClient
	clientID     string
	clientSecret string

	mu      sync.Mutex
	token   *oauth2.Token
	idToken string
	scopes  []string
}

func newSession(client *SDKClient, clientID, clientSecret string, tr *TokenResponse) *Session {
	s := &Session{client: client, clientID: clientID, clientSecret: clientSecret}
	s.apply(tr)
	return s
}

// apply stores a token response. Callers hold mu or own s.
func (s *Session) apply(tr *TokenResponse) {
	s.token = &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    tr.TokenType,
		RefreshToken: tr.RefreshToken,
		Expiry:       time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	if tr.IDToken != "" {
		s.idToken = tr.IDToken
	}
	s.scopes = strings.Fields(tr.Scope)
	slices.Sort(s.scopes)
}

func (s *Session) fresh() bool {
	return s.token.AccessToken != "" && time.Now().Add(refreshSkew).Before(s.token.Expiry)
}

// validToken returns an access token with at least refreshSkew left,
// redeeming the refresh token first when needed.
func (s *Session) validToken(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fresh() {
		return s.token, nil
	}
	if s.token.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	tr, err := s.client.RefreshGrant(ctx, s.clientID, s.clientSecret, s.token.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("authsdk: refresh: %w", err)
	}
	s.apply(tr)
	return s.token, nil
}

// Token implements oauth2.TokenSource.
func (s *Session) Token() (*oauth2.Token, error) {
	tok, err := s.validToken(context.Background())
	if err != nil {
		return nil, err
	}
	cp := *tok
	return &cp, nil
}

// HTTPClient returns a client that sends the session's bearer token, for
// calling resource servers that trust this issuer.
func (s *Session) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, s.client.HTTPClient), s)
}

// Refresh redeems the refresh token now, regardless of expiry.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.token.Expiry = time.Time{}
	s.mu.Unlock()

	_, err := s.validToken(ctx)
	return err
}

// Revoke revokes the refresh token, ending the grant on the server.
func (s *Session) Revoke(ctx context.Context) error {
	rt := s.RefreshToken()
	if rt == "" {
		return ErrNoRefreshToken
	}
	return s.client.RevokeToken(ctx, s.clientID, s.clientSecret, rt)
}

// AccessToken returns the current access token without refreshing it.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.AccessToken
}

func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token.RefreshToken
}

// IDToken returns the last id_token received, if "openid" was granted.
func (s *Session) IDToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idToken
}

// Scopes returns the granted scopes, sorted.
func (s *Session) Scopes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.scopes)
}

func (s *Session) HasScope(scope string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := slices.BinarySearch(s.scopes, scope)
	return ok
}

func (s *Session) checkScopes(required ...string) error {
	if !s.client.CheckScopes {
		return nil
	}

	var missing []string
	for _, scope := range required {
		if !s.HasScope(scope) {
			missing = append(missing, scope)
		}
	}
	if len(missing) > 0 {
		return &MissingScopeError{Missing: missing}
	}
	return nil
}
