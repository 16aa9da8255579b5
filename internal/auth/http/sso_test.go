package http_test

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

// beginSSO starts a federated login and returns the state the provider
// would send back.
func beginSSO(t *testing.T, ts *testServer, query url.Values) string {
	t.Helper()

	resp := ts.get(t, "/auth/sso/entra?"+query.Encode(), "")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := resp.Location()
	require.NoError(t, err)
	require.Equal(t, "idp.example.com", loc.Host)
	require.Equal(t, testCallbackURL, loc.Query().Get("redirect_uri"))

	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func callback(t *testing.T, ts *testServer, state string) *http.Response {
	t.Helper()

	q := url.Values{"code": {"idp-code"}, "state": {state}}
	return ts.get(t, "/auth/sso/callback?"+q.Encode(), "")
}

func requireLoginFailure(t *testing.T, resp *http.Response, code string) {
	t.Helper()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := resp.Location()
	require.NoError(t, err)
	require.Equal(t, "/login", loc.Path)
	require.Equal(t, code, loc.Query().Get("error"))
	require.Nil(t, sessionCookieFrom(resp))
}

func TestFederatedLogin(t *testing.T) {
	ctx := t.Context()
	ts := newTestServer(t)

	state := beginSSO(t, ts, url.Values{"redirect": {"/dashboard"}})

	resp := callback(t, ts, state)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.Equal(t, "/dashboard", resp.Header.Get("Location"))

	cookie := sessionCookieFrom(resp)
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	claims, err := ts.keys.Verify(cookie.Value, jwtx.TokenUseSession, jwtx.AudienceSession)
	require.NoError(t, err)
	require.Equal(t, []string{jwtx.AMRFederated}, claims.AMR)

	user, err := ts.store.Users().GetUserByProvider(ctx, "entra", "sub-123")
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, "grace@gmail.com", user.Email)
	require.Empty(t, user.TenantID)

	t.Run("state is single use", func(t *testing.T) {
		requireLoginFailure(t, callback(t, ts, state), "invalid_request")
	})

	t.Run("repeat login reuses the user", func(t *testing.T) {
		resp := callback(t, ts, beginSSO(t, ts, nil))
		require.Equal(t, "/", resp.Header.Get("Location"))

		claims, err := ts.keys.Verify(sessionCookieFrom(resp).Value, jwtx.TokenUseSession, jwtx.AudienceSession)
		require.NoError(t, err)
		require.Equal(t, user.ID, claims.Subject)
	})

	t.Run("return url", func(t *testing.T) {
		for name, tc := range map[string]struct {
			query url.Values
			want  string
		}{
			"returnUrl":          {url.Values{"returnUrl": {"/dashboard"}}, "/dashboard"},
			"returnUrl wins":     {url.Values{"returnUrl": {"/settings"}, "redirect": {"/dashboard"}}, "/settings"},
			"external returnUrl": {url.Values{"returnUrl": {"https://evil.example.com/"}}, "/"},
			"protocol relative":  {url.Values{"returnUrl": {"//evil.example.com"}}, "/"},
		} {
			t.Run(name, func(t *testing.T) {
				resp := callback(t, ts, beginSSO(t, ts, tc.query))
				require.Equal(t, http.StatusFound, resp.StatusCode)
				require.Equal(t, tc.want, resp.Header.Get("Location"))
			})
		}
	})
}

func TestFederatedLoginResumesAuthorization(t *testing.T) {
	ctx := t.Context()
	ts := newTestServer(t)
	ts.seedClient(t, "cli_portal")

	pkce, err := authsdk.GeneratePKCEChallenge()
	require.NoError(t, err)
	req := authsdk.NewAuthorizeRequest("cli_portal", testRedirect, "st", []string{"openid"}, pkce)

	anon, err := ts.sdk.Authorize(ctx, "", req)
	require.NoError(t, err)
	require.NotEmpty(t, anon.Pending)

	resp := callback(t, ts, beginSSO(t, ts, url.Values{"pending": {anon.Pending}}))
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := resp.Location()
	require.NoError(t, err)
	require.Equal(t, "/oauth/authorize", loc.Path)
	require.Equal(t, "cli_portal", loc.Query().Get("client_id"))
	require.Equal(t, "st", loc.Query().Get("state"))

	t.Run("pending key is consumed", func(t *testing.T) {
		resp := ts.get(t, "/auth/sso/entra?pending="+url.QueryEscape(anon.Pending), "")
		requireLoginFailure(t, resp, "invalid_request")
	})
}

func TestFederationFailures(t *testing.T) {
	ctx := t.Context()
	ts := newTestServer(t)

	t.Run("unknown provider", func(t *testing.T) {
		requireLoginFailure(t, ts.get(t, "/auth/sso/okta", ""), "invalid_request")
	})

	t.Run("provider reported an error", func(t *testing.T) {
		q := url.Values{"error": {"access_denied"}, "state": {"whatever"}}
		requireLoginFailure(t, ts.get(t, "/auth/sso/callback?"+q.Encode(), ""), authsdk.ErrorCodeAccessDenied)
	})

	t.Run("forged state", func(t *testing.T) {
		requireLoginFailure(t, callback(t, ts, "forged"), "invalid_request")
	})

	t.Run("exchange failure", func(t *testing.T) {
		state := beginSSO(t, ts, nil)
		ts.idp.mu.Lock()
		ts.idp.err = errors.New("token endpoint unavailable")
		ts.idp.mu.Unlock()
		t.Cleanup(func() {
			ts.idp.mu.Lock()
			ts.idp.err = nil
			ts.idp.mu.Unlock()
		})

		requireLoginFailure(t, callback(t, ts, state), authsdk.ErrorCodeAccessDenied)
	})

	t.Run("identity conflict", func(t *testing.T) {
		// Same email already linked to another subject at the same provider
		require.NoError(t, ts.store.Users().CreateUser(ctx, domain.User{
			ID:              "u-existing",
			Email:           "grace@gmail.com",
			Role:            domain.RoleMember,
			Provider:        "entra",
			ProviderSubject: "sub-other",
			EmailVerified:   true,
		}))

		requireLoginFailure(t, callback(t, ts, beginSSO(t, ts, nil)), "identity_conflict")
	})

	t.Run("open redirect is dropped", func(t *testing.T) {
		ts.idp.mu.Lock()
		ts.idp.identity.Subject = "sub-other"
		ts.idp.mu.Unlock()

		resp := callback(t, ts, beginSSO(t, ts, url.Values{"redirect": {"//evil.example.com/"}}))
		require.Equal(t, http.StatusFound, resp.StatusCode)
		require.Equal(t, "/", resp.Header.Get("Location"))
	})
}
