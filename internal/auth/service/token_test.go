package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

const testVerifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

// issueTestCode runs the authorization endpoint for the platform client,
// which never asks for consent, and returns the code.
func issueTestCode(t *testing.T, env *testEnv, user domain.User, req AuthorizeRequest) string {
	t.Helper()

	sess := NewSession(user.ID, jwtx.AMRPassword)
	out, err := env.authorize.BeginAuthorization(context.Background(), req, &sess)
	require.NoError(t, err)
	require.Equal(t, OutcomeIssueCode, out.Kind)

	code, _ := codeFrom(t, out.RedirectURL)
	return code
}

func platformRequest(env *testEnv, scope string) AuthorizeRequest {
	return AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            env.authorize.PlatformClientID,
		RedirectURI:         testRedirect,
		Scope:               scope,
		State:               "st",
		Nonce:               "n-0S6_WzA2Mj",
		CodeChallenge:       cryptox.S256Challenge(testVerifier),
		CodeChallengeMethod: cryptox.PKCEMethodS256,
	}
}

func codeExchange(clientID, code, verifier string) TokenRequest {
	return TokenRequest{
		GrantType:    domain.GrantTypeAuthorizationCode,
		ClientID:     clientID,
		Code:         code,
		RedirectURI:  testRedirect,
		CodeVerifier: verifier,
	}
}

func TestExchangeCode(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.seedClient(t, env.authorize.PlatformClientID)
	user := env.seedUser(t, "ada@example.com")

	t.Run("S256 round trip", func(t *testing.T) {
		code := issueTestCode(t, env, user, platformRequest(env, "openid profile email"))

		pair, err := env.tokens.Exchange(ctx, codeExchange(client.ID, code, testVerifier))
		require.NoError(t, err)
		require.Equal(t, domain.TokenTypeBearer, pair.TokenType)
		require.NotEmpty(t, pair.RefreshToken)
		require.Equal(t, "email openid profile", pair.Scope)

		access, err := env.keys.Verify(pair.AccessToken, jwtx.TokenUseAccess, client.ID)
		require.NoError(t, err)
		require.Equal(t, user.ID, access.Subject)
		require.Equal(t, testIssuer, access.Issuer)
		require.Equal(t, []string{jwtx.AMRPassword}, access.AMR)

		id, err := env.keys.Verify(pair.IDToken, jwtx.TokenUseID, client.ID)
		require.NoError(t, err)
		require.Equal(t, "n-0S6_WzA2Mj", id.Nonce)
		require.Equal(t, "ada@example.com", id.Email)
		require.NotNil(t, id.EmailVerified)
		require.True(t, *id.EmailVerified)
		require.NotNil(t, id.AuthTime)
	})

	t.Run("plain round trip", func(t *testing.T) {
		req := platformRequest(env, "openid")
		req.CodeChallenge = testVerifier
		req.CodeChallengeMethod = ""
		code := issueTestCode(t, env, user, req)

		_, err := env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
		require.NoError(t, err)
	})

	t.Run("no id token without openid", func(t *testing.T) {
		code := issueTestCode(t, env, user, platformRequest(env, "profile"))

		pair, err := env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
		require.NoError(t, err)
		require.Empty(t, pair.IDToken)
	})

	t.Run("tokens are stored only as fingerprints", func(t *testing.T) {
		code := issueTestCode(t, env, user, platformRequest(env, "openid"))

		pair, err := env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
		require.NoError(t, err)

		_, err = env.store.Tokens().GetTokenByAccessHash(ctx, pair.AccessToken)
		require.Error(t, err)
		_, err = env.store.Tokens().GetTokenByRefreshHash(ctx, pair.RefreshToken)
		require.Error(t, err)

		tok, err := env.store.Tokens().GetTokenByAccessHash(ctx, cryptox.FingerprintToken(pair.AccessToken))
		require.NoError(t, err)
		require.Equal(t, cryptox.FingerprintToken(pair.RefreshToken), tok.RefreshTokenHash)
	})

	t.Run("code redeems once", func(t *testing.T) {
		code := issueTestCode(t, env, user, platformRequest(env, "openid"))

		_, err := env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
		require.NoError(t, err)

		_, err = env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("wrong verifier burns the code", func(t *testing.T) {
		code := issueTestCode(t, env, user, platformRequest(env, "openid"))

		_, err := env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, "not-the-verifier"))
		require.ErrorIs(t, err, ErrInvalidGrant)

		_, err = env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("missing verifier", func(t *testing.T) {
		code := issueTestCode(t, env, user, platformRequest(env, "openid"))

		_, err := env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, ""))
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("redirect uri must match", func(t *testing.T) {
		code := issueTestCode(t, env, user, platformRequest(env, "openid"))

		req := codeExchange(client.ID, code, testVerifier)
		req.RedirectURI = "https://app.example.com/other"
		_, err := env.tokens.ExchangeCode(ctx, req)
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("code is bound to its client", func(t *testing.T) {
		other := env.seedClient(t, "cli_other")
		code := issueTestCode(t, env, user, platformRequest(env, "openid"))

		_, err := env.tokens.ExchangeCode(ctx, codeExchange(other.ID, code, testVerifier))
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("expired code", func(t *testing.T) {
		code := "expired-code"
		err := env.store.AuthorizationCodes().CreateAuthorizationCode(ctx, domain.AuthorizationCode{
			CodeHash:            cryptox.FingerprintToken(code),
			ClientID:            client.ID,
			UserID:              user.ID,
			Scope:               "openid",
			RedirectURI:         testRedirect,
			CodeChallenge:       cryptox.S256Challenge(testVerifier),
			CodeChallengeMethod: cryptox.PKCEMethodS256,
			AuthTime:            time.Now().Add(-time.Hour),
			ExpiresAt:           time.Now().Add(-time.Minute),
			CreatedAt:           time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)

		_, err = env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("unknown client", func(t *testing.T) {
		_, err := env.tokens.ExchangeCode(ctx, codeExchange("cli_nobody", "whatever", testVerifier))
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("unsupported grant type", func(t *testing.T) {
		_, err := env.tokens.Exchange(ctx, TokenRequest{GrantType: "password", ClientID: client.ID})
		require.ErrorIs(t, err, ErrUnsupportedGrantType)
	})
}

func TestExchangeCodeConcurrentRedemption(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.seedClient(t, env.authorize.PlatformClientID)
	user := env.seedUser(t, "ada@example.com")
	code := issueTestCode(t, env, user, platformRequest(env, "openid"))

	const attempts = 8
	var (
		wg   sync.WaitGroup
		errs = make([]error, attempts)
	)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
		}()
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrInvalidGrant)
	}
	require.Equal(t, 1, ok)
}

func TestExchangeCodeConfidentialClient(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seedUser(t, "ada@example.com")

	client, secret, err := env.clients.CreateClient(ctx, CreateClientParams{
		Name:         "Reporting Backend",
		RedirectURIs: []string{testRedirect},
		Confidential: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, secret)
	require.False(t, client.PKCERequired)
	env.authorize.PlatformClientID = client.ID

	req := platformRequest(env, "openid")
	req.CodeChallenge = ""
	req.CodeChallengeMethod = ""

	t.Run("secret required", func(t *testing.T) {
		code := issueTestCode(t, env, user, req)
		_, err := env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, ""))
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("wrong secret", func(t *testing.T) {
		code := issueTestCode(t, env, user, req)
		exchange := codeExchange(client.ID, code, "")
		exchange.ClientSecret = "nope"
		_, err := env.tokens.ExchangeCode(ctx, exchange)
		require.ErrorIs(t, err, ErrInvalidClient)
	})

	t.Run("verifier without challenge", func(t *testing.T) {
		code := issueTestCode(t, env, user, req)
		exchange := codeExchange(client.ID, code, testVerifier)
		exchange.ClientSecret = secret
		_, err := env.tokens.ExchangeCode(ctx, exchange)
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("secret accepted", func(t *testing.T) {
		code := issueTestCode(t, env, user, req)
		exchange := codeExchange(client.ID, code, "")
		exchange.ClientSecret = secret
		pair, err := env.tokens.ExchangeCode(ctx, exchange)
		require.NoError(t, err)
		require.NotEmpty(t, pair.AccessToken)
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.seedClient(t, env.authorize.PlatformClientID)
	user := env.seedUser(t, "ada@example.com")

	exchange := func(t *testing.T) *domain.TokenPair {
		t.Helper()
		code := issueTestCode(t, env, user, platformRequest(env, "openid profile email"))
		pair, err := env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
		require.NoError(t, err)
		return pair
	}
	refresh := func(token, scope string) (*domain.TokenPair, error) {
		return env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    domain.GrantTypeRefreshToken,
			ClientID:     client.ID,
			RefreshToken: token,
			Scope:        scope,
		})
	}

	t.Run("rotates the pair", func(t *testing.T) {
		first := exchange(t)

		second, err := refresh(first.RefreshToken, "")
		require.NoError(t, err)
		require.NotEqual(t, first.RefreshToken, second.RefreshToken)
		require.Equal(t, first.Scope, second.Scope)

		info, err := env.tokens.Introspect(ctx, first.AccessToken)
		require.NoError(t, err)
		require.False(t, info.Active)
	})

	t.Run("reuse revokes the family", func(t *testing.T) {
		first := exchange(t)
		second, err := refresh(first.RefreshToken, "")
		require.NoError(t, err)

		_, err = refresh(first.RefreshToken, "")
		require.ErrorIs(t, err, ErrInvalidGrant)

		info, err := env.tokens.Introspect(ctx, second.AccessToken)
		require.NoError(t, err)
		require.False(t, info.Active)
	})

	t.Run("scope may narrow", func(t *testing.T) {
		pair, err := refresh(exchange(t).RefreshToken, "openid")
		require.NoError(t, err)
		require.Equal(t, "openid", pair.Scope)
	})

	t.Run("scope may not widen", func(t *testing.T) {
		_, err := refresh(exchange(t).RefreshToken, "openid tenant")
		require.ErrorIs(t, err, ErrInvalidScope)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := refresh("not-a-token", "")
		require.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("bound to its client", func(t *testing.T) {
		other := env.seedClient(t, "cli_other")
		_, err := env.tokens.Exchange(ctx, TokenRequest{
			GrantType:    domain.GrantTypeRefreshToken,
			ClientID:     other.ID,
			RefreshToken: exchange(t).RefreshToken,
		})
		require.ErrorIs(t, err, ErrInvalidGrant)
	})
}

func TestNoRefreshTokenWithoutRefreshGrant(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seedUser(t, "ada@example.com")

	client := domain.Client{
		ID:           env.authorize.PlatformClientID,
		Name:         "Kiosk",
		Environment:  testEnvironment,
		RedirectURIs: []string{testRedirect},
		GrantTypes:   []string{domain.GrantTypeAuthorizationCode},
		PKCERequired: true,
	}
	require.NoError(t, env.store.Clients().CreateClient(ctx, client))

	code := issueTestCode(t, env, user, platformRequest(env, "openid"))
	pair, err := env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
	require.NoError(t, err)
	require.Empty(t, pair.RefreshToken)
}

func TestIntrospect(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.seedClient(t, env.authorize.PlatformClientID)
	user := env.seedUser(t, "ada@example.com")

	code := issueTestCode(t, env, user, platformRequest(env, "openid email"))
	pair, err := env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
	require.NoError(t, err)

	t.Run("active access token", func(t *testing.T) {
		info, err := env.tokens.Introspect(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.True(t, info.Active)
		require.Equal(t, "email openid", info.Scope)
		require.Equal(t, client.ID, info.ClientID)
		require.Equal(t, user.ID, info.Subject)
		require.Equal(t, domain.TokenTypeBearer, info.TokenType)
		require.Greater(t, info.ExpiresAt, time.Now().Unix())
	})

	t.Run("active refresh token", func(t *testing.T) {
		info, err := env.tokens.Introspect(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.True(t, info.Active)
	})

	t.Run("unknown and empty tokens", func(t *testing.T) {
		for _, tok := range []string{"", "garbage"} {
			info, err := env.tokens.Introspect(ctx, tok)
			require.NoError(t, err)
			require.Equal(t, Introspection{}, info)
		}
	})

	t.Run("revoked token", func(t *testing.T) {
		require.NoError(t, env.tokens.Revoke(ctx, pair.RefreshToken))

		info, err := env.tokens.Introspect(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.False(t, info.Active)
	})

	t.Run("revoking an unknown token is not an error", func(t *testing.T) {
		require.NoError(t, env.tokens.Revoke(ctx, "garbage"))
	})
}

func TestRevokeForClient(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.seedClient(t, env.authorize.PlatformClientID)
	user := env.seedUser(t, "ada@example.com")

	code := issueTestCode(t, env, user, platformRequest(env, "openid"))
	pair, err := env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
	require.NoError(t, err)

	t.Run("another client cannot revoke", func(t *testing.T) {
		require.NoError(t, env.tokens.RevokeForClient(ctx, "cli_other", pair.RefreshToken))

		info, err := env.tokens.Introspect(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.True(t, info.Active)
	})

	t.Run("unknown token", func(t *testing.T) {
		require.NoError(t, env.tokens.RevokeForClient(ctx, client.ID, "garbage"))
	})

	t.Run("owning client revokes both halves", func(t *testing.T) {
		require.NoError(t, env.tokens.RevokeForClient(ctx, client.ID, pair.AccessToken))

		for _, tok := range []string{pair.AccessToken, pair.RefreshToken} {
			info, err := env.tokens.Introspect(ctx, tok)
			require.NoError(t, err)
			require.False(t, info.Active)
		}
	})
}

func TestUserInfo(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.seedClient(t, env.authorize.PlatformClientID)
	user := env.seedUser(t, "ada@example.com")

	access := func(t *testing.T, scope string) string {
		t.Helper()
		code := issueTestCode(t, env, user, platformRequest(env, scope))
		pair, err := env.tokens.ExchangeCode(ctx, codeExchange(client.ID, code, testVerifier))
		require.NoError(t, err)
		return pair.AccessToken
	}

	t.Run("openid only discloses the subject", func(t *testing.T) {
		info, err := env.tokens.UserInfo(ctx, access(t, "openid"))
		require.NoError(t, err)
		require.Equal(t, UserInfo{Subject: user.ID}, info)
	})

	t.Run("profile and email", func(t *testing.T) {
		info, err := env.tokens.UserInfo(ctx, access(t, "openid profile email"))
		require.NoError(t, err)
		require.Equal(t, "Ada Lovelace", info.Name)
		require.Equal(t, "ada@example.com", info.PreferredUsername)
		require.Equal(t, "ada@example.com", info.Email)
		require.NotNil(t, info.EmailVerified)
		require.True(t, *info.EmailVerified)
		require.Empty(t, info.TenantID)
	})

	t.Run("not a token we issued", func(t *testing.T) {
		_, err := env.tokens.UserInfo(ctx, "garbage")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("session cookie is not a bearer token", func(t *testing.T) {
		cookie, err := env.login.IssueSession(ctx, NewSession(user.ID, jwtx.AMRPassword))
		require.NoError(t, err)

		_, err = env.tokens.UserInfo(ctx, cookie)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("revoked token", func(t *testing.T) {
		tok := access(t, "openid profile")
		require.NoError(t, env.tokens.Revoke(ctx, tok))

		_, err := env.tokens.UserInfo(ctx, tok)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}
