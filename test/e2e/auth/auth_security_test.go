package auth_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestInvalidCredentials verifies that login with wrong password is rejected
// the same way as an unknown account.
func TestInvalidCredentials(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	ctx := t.Context()
	client := authsdk.NewSDKClient(baseURL)

	_, _, err := client.Login(ctx, authsdk.LoginRequest{Email: adminEmail, Password: "wrong-password"})
	assertOAuthError(t, err, http.StatusUnauthorized, "invalid_credentials")

	_, _, err = client.Login(ctx, authsdk.LoginRequest{Email: "nobody@maturity.test", Password: adminPassword})
	assertOAuthError(t, err, http.StatusUnauthorized, "invalid_credentials")
}

// TestRemovedGrantTypes verifies the token endpoint refuses the password
// and client credentials grants.
func TestRemovedGrantTypes(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	for _, grant := range []string{"password", "client_credentials", "implicit"} {
		t.Run(grant, func(t *testing.T) {
			form := url.Values{
				"grant_type": {grant},
				"client_id":  {platformClientID},
				"username":   {adminEmail},
				"password":   {adminPassword},
			}
			resp, err := http.PostForm(baseURL+"/oauth/token", form)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

// TestAuthorizeRedirectSafety verifies an unregistered redirect URI is
// never redirected to.
func TestAuthorizeRedirectSafety(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	client := authsdk.NewSDKClient(baseURL)

	pkce, err := authsdk.GeneratePKCEChallenge()
	require.NoError(t, err)
	req := authsdk.NewAuthorizeRequest(platformClientID, "https://evil.example.com/callback", "s", []string{"openid"}, pkce)

	_, err = client.Authorize(t.Context(), "", req)
	assertOAuthError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
}

// TestSessionCookieIsNotABearerToken verifies a browser session token is
// refused where an access token is expected, and the reverse.
func TestSessionCookieIsNotABearerToken(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	ctx := t.Context()
	client := authsdk.NewSDKClient(baseURL)
	cookie := loginAdmin(t, client)

	_, err := client.UserInfo(ctx, cookie)
	assertOAuthError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	session, err := client.AuthorizeAndExchange(ctx, cookie, platformClientID, "", platformRedirect, adminScopes)
	require.NoError(t, err)

	_, err = client.ListConsents(ctx, session.AccessToken())
	assertOAuthError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeLoginRequired)
}

// TestAdminAPIRequiresAdmin verifies the admin API checks scope and role.
func TestAdminAPIRequiresAdmin(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	ctx := t.Context()
	client := authsdk.NewSDKClient(baseURL)

	invalidSession := client.NewSessionFromTokens(platformClientID, "", &authsdk.TokenResponse{
		AccessToken: "invalid-token-12345",
		TokenType:   "Bearer",
		ExpiresIn:   3600,
		Scope:       "admin",
	})
	_, err := invalidSession.ListClients(ctx)
	assertOAuthError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	t.Run("token without admin scope", func(t *testing.T) {
		narrow, err := client.AuthorizeAndExchange(ctx, loginAdmin(t, client), platformClientID, "", platformRedirect, []string{"openid"})
		require.NoError(t, err)

		unchecked := *client
		unchecked.CheckScopes = false
		s := unchecked.NewSessionFromTokens(platformClientID, "", &authsdk.TokenResponse{
			AccessToken: narrow.AccessToken(),
			TokenType:   "Bearer",
			ExpiresIn:   300,
			Scope:       "openid",
		})
		_, err = s.ListClients(ctx)
		assertOAuthError(t, err, http.StatusForbidden, authsdk.ErrorCodeInsufficientScope)
	})

	t.Run("platform client cannot be deleted", func(t *testing.T) {
		err := adminSession(t, client).DeleteClient(context.Background(), platformClientID)
		assertOAuthError(t, err, http.StatusForbidden, "client_protected")
	})

	t.Run("platform client is listed as protected", func(t *testing.T) {
		list, err := adminSession(t, client).ListClients(ctx)
		require.NoError(t, err)

		var found bool
		for _, c := range list.Clients {
			if strings.EqualFold(c.ID, platformClientID) {
				found = true
				require.True(t, c.Protected)
				require.False(t, c.Confidential)
			}
		}
		require.True(t, found)
	})
}
