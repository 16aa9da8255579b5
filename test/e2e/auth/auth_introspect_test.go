package auth_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestIntrospectValidToken tests introspecting a valid access token.
// It verifies that all expected fields are present and correct.
func TestIntrospectValidToken(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	ctx := t.Context()
	client := authsdk.NewSDKClient(baseURL)
	session := adminSession(t, client)

	introspection, err := client.Introspect(ctx, platformClientID, "", session.AccessToken())
	require.NoError(t, err)
	require.True(t, introspection.Active, "Token should be active")

	require.Equal(t, platformClientID, introspection.ClientID)
	require.Equal(t, "Bearer", introspection.TokenType)
	require.Equal(t, testIssuer, introspection.Iss)
	require.NotEmpty(t, introspection.Sub)
	require.Contains(t, introspection.Scope, "admin")

	now := time.Now().Unix()
	require.LessOrEqual(t, introspection.Iat, now+5)
	require.Greater(t, introspection.Exp, now)
}

// TestIntrospectInactiveTokens verifies that unknown, revoked and refresh
// tokens all come back as a bare active=false.
func TestIntrospectInactiveTokens(t *testing.T) {
	baseURL, cleanup := setupAuthContainer(t)
	defer cleanup()

	ctx := t.Context()
	client := authsdk.NewSDKClient(baseURL)
	session := adminSession(t, client)

	t.Run("garbage", func(t *testing.T) {
		info, err := client.Introspect(ctx, platformClientID, "", "not-a-token")
		require.NoError(t, err)
		require.Equal(t, authsdk.IntrospectionResponse{Active: false}, *info)
	})

	t.Run("revoked", func(t *testing.T) {
		other := adminSession(t, client)
		require.NoError(t, client.RevokeToken(ctx, platformClientID, "", other.AccessToken()))

		info, err := client.Introspect(ctx, platformClientID, "", other.AccessToken())
		require.NoError(t, err)
		require.False(t, info.Active)
	})

	t.Run("still active after unrelated revoke", func(t *testing.T) {
		info, err := client.Introspect(ctx, platformClientID, "", session.AccessToken())
		require.NoError(t, err)
		require.True(t, info.Active)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := client.Introspect(ctx, "cli_missing", "", session.AccessToken())
		assertOAuthError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidClient)
	})
}
