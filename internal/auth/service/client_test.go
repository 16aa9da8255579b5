package service

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestCreateClient(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	t.Run("public client", func(t *testing.T) {
		c, secret, err := env.clients.CreateClient(ctx, CreateClientParams{
			Name:         "Assessment SPA",
			RedirectURIs: []string{testRedirect, testRedirect},
		})
		require.NoError(t, err)
		require.Empty(t, secret)
		require.False(t, c.IsConfidential())
		require.True(t, c.PKCERequired)
		require.Equal(t, []string{testRedirect}, c.RedirectURIs)
		require.Equal(t, testEnvironment, c.Environment)
		require.True(t, c.AllowsGrant(domain.GrantTypeRefreshToken))
	})

	t.Run("confidential client", func(t *testing.T) {
		c, secret, err := env.clients.CreateClient(ctx, CreateClientParams{
			Name:         "Report Worker",
			RedirectURIs: []string{testRedirect},
			GrantTypes:   []string{domain.GrantTypeAuthorizationCode},
			Confidential: true,
		})
		require.NoError(t, err)
		require.NotEmpty(t, secret)

		stored, err := env.clients.FindClient(ctx, c.ID, testEnvironment)
		require.NoError(t, err)
		require.NotEqual(t, secret, stored.SecretHash)
		require.True(t, env.clients.VerifySecret(stored, secret))
		require.False(t, env.clients.VerifySecret(stored, "guess"))
		require.False(t, stored.AllowsGrant(domain.GrantTypeRefreshToken))
	})

	invalid := map[string]CreateClientParams{
		"no name":           {RedirectURIs: []string{testRedirect}},
		"no redirect":       {Name: "x"},
		"bad redirect":      {Name: "x", RedirectURIs: []string{"not a url"}},
		"unknown grant":     {Name: "x", RedirectURIs: []string{testRedirect}, GrantTypes: []string{"password"}},
		"refresh only":      {Name: "x", RedirectURIs: []string{testRedirect}, GrantTypes: []string{domain.GrantTypeRefreshToken}},
		"bad logout target": {Name: "x", RedirectURIs: []string{testRedirect}, PostLogoutRedirectURIs: []string{"::"}},
	}
	for name, p := range invalid {
		t.Run(name, func(t *testing.T) {
			_, _, err := env.clients.CreateClient(ctx, p)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestFindClientIsScopedToEnvironment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.seedClient(t, "cli_portal")

	_, err := env.clients.FindClient(ctx, client.ID, testEnvironment)
	require.NoError(t, err)

	_, err = env.clients.FindClient(ctx, client.ID, "production")
	require.ErrorIs(t, err, ErrInvalidClient)

	_, err = env.clients.FindClient(ctx, "", testEnvironment)
	require.ErrorIs(t, err, ErrInvalidClient)
}

func TestDeleteClient(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.seedClient(t, "cli_portal")

	protected := domain.Client{
		ID:           "cli_platform",
		Name:         "Platform",
		Environment:  testEnvironment,
		RedirectURIs: []string{testRedirect},
		GrantTypes:   []string{domain.GrantTypeAuthorizationCode},
		Protected:    true,
	}
	require.NoError(t, env.store.Clients().CreateClient(ctx, protected))

	require.ErrorIs(t, env.clients.DeleteClient(ctx, protected.ID), ErrClientProtected)
	require.NoError(t, env.clients.DeleteClient(ctx, client.ID))
	require.ErrorIs(t, env.clients.DeleteClient(ctx, client.ID), ErrClientNotFound)

	clients, err := env.clients.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
}

func TestNormalizeScopes(t *testing.T) {
	require.Equal(t, []string{"email", "openid", "profile"}, NormalizeScopes("profile  openid email openid"))
	require.Empty(t, NormalizeScopes("   "))
	require.Equal(t, ScopeHash(NormalizeScopes("b a")), ScopeHash(NormalizeScopes("a b a")))
	require.NotEqual(t, ScopeHash([]string{"a"}), ScopeHash([]string{"a", "b"}))
}

func TestRevokeConsent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.seedClient(t, "cli_portal")
	user := env.seedUser(t, "ada@example.com")
	other := env.seedUser(t, "grace@example.com")
	sess := NewSession(user.ID, jwtx.AMRPassword)

	req := validRequest(client.ID)
	req.CodeChallenge = testVerifier
	req.CodeChallengeMethod = ""
	out, err := env.authorize.DecideConsent(ctx, ConsentDecision{AuthorizeRequest: req, Approved: true}, &sess)
	require.NoError(t, err)
	code, _ := codeFrom(t, out.RedirectURL)

	pair, err := env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
	require.NoError(t, err)

	consents, err := env.consents.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, consents, 1)
	require.Equal(t, "Assessment Portal", consents[0].ClientName)

	t.Run("another user's consent is not found", func(t *testing.T) {
		require.ErrorIs(t, env.consents.Revoke(ctx, other.ID, consents[0].ID), ErrConsentNotFound)
	})

	require.NoError(t, env.consents.Revoke(ctx, user.ID, consents[0].ID))

	t.Run("tokens of the client are revoked", func(t *testing.T) {
		info, err := env.tokens.Introspect(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.False(t, info.Active)
	})

	t.Run("consent is asked again", func(t *testing.T) {
		out, err := env.authorize.BeginAuthorization(ctx, req, &sess)
		require.NoError(t, err)
		require.Equal(t, OutcomeConsentRequired, out.Kind)
	})

	t.Run("revoking twice", func(t *testing.T) {
		require.ErrorIs(t, env.consents.Revoke(ctx, user.ID, consents[0].ID), ErrConsentNotFound)
	})
}
