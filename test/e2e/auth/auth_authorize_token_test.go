package auth_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

const portalRedirect = "https://portal.example.com/callback"

// TestAuthorizationCodeWithConsent walks a third-party client through the
// whole code flow:
// 1. Register the client through the admin API
// 2. Anonymous authorize parks the request and sends the browser to login
// 3. Login resumes the request, which then asks for consent
// 4. Approve, exchange the code, and reuse the stored consent afterwards
func TestAuthorizationCodeWithConsent(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	ctx := t.Context()
	client := authsdk.NewSDKClient(baseURL)

	admin := adminSession(t, client)
	portalID := registerClient(t, admin, "Assessment Portal", portalRedirect)

	pkce, err := authsdk.GeneratePKCEChallenge()
	require.NoError(t, err)
	req := authsdk.NewAuthorizeRequest(portalID, portalRedirect, "abc", []string{"openid", "email"}, pkce)

	anon, err := client.Authorize(ctx, "", req)
	require.NoError(t, err)
	require.Equal(t, "/login", anon.Location.Path)
	require.NotEmpty(t, anon.Pending)

	cookie, login, err := client.Login(ctx, authsdk.LoginRequest{
		Email:    adminEmail,
		Password: adminPassword,
		Pending:  anon.Pending,
	})
	require.NoError(t, err)
	require.NotEmpty(t, login.RedirectURL, "Login should resume the parked request")

	prompt, err := client.GetConsentPrompt(ctx, cookie, req)
	require.NoError(t, err)
	require.Equal(t, "Assessment Portal", prompt.ClientName)
	require.ElementsMatch(t, []string{"openid", "email"}, prompt.Scopes)

	callback, err := client.DecideConsent(ctx, cookie, req.ConsentDecision(true))
	require.NoError(t, err)
	code, state, err := authsdk.ParseAuthorizationCallback(callback.String())
	require.NoError(t, err)
	require.Equal(t, "abc", state)

	tokens, err := client.ExchangeAuthorizationCode(ctx, portalID, "", code, portalRedirect, pkce.Verifier)
	require.NoError(t, err)
	assertTokenResponse(t, tokens)
	require.NotEmpty(t, tokens.IDToken)

	t.Run("wrong verifier", func(t *testing.T) {
		result, err := client.Authorize(ctx, cookie, req)
		require.NoError(t, err)
		require.NotEmpty(t, result.Code, "Stored consent should skip the prompt")

		_, err = client.ExchangeAuthorizationCode(ctx, portalID, "", result.Code, portalRedirect, "not-the-verifier-not-the-verifier-0123456789")
		assertOAuthError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidGrant)
	})

	t.Run("consent is listed and revocable", func(t *testing.T) {
		consents, err := client.ListConsents(ctx, cookie)
		require.NoError(t, err)

		var consentID string
		for _, c := range consents {
			if c.ClientID == portalID {
				consentID = c.ID
			}
		}
		require.NotEmpty(t, consentID)
		require.NoError(t, client.RevokeConsent(ctx, cookie, consentID))

		info, err := client.Introspect(ctx, portalID, "", tokens.AccessToken)
		require.NoError(t, err)
		require.False(t, info.Active, "Revoking consent should revoke the client's tokens")

		result, err := client.Authorize(ctx, cookie, req)
		require.NoError(t, err)
		require.True(t, result.ConsentRequired("/consent"))
	})

	t.Run("denied consent", func(t *testing.T) {
		callback, err := client.DecideConsent(ctx, cookie, req.ConsentDecision(false))
		require.NoError(t, err)

		_, _, err = authsdk.ParseAuthorizationCallback(callback.String())
		require.Error(t, err)
		require.Equal(t, authsdk.ErrorCodeAccessDenied, callback.Query().Get("error"))
	})
}
