package service

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func validRequest(clientID string) AuthorizeRequest {
	return AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            clientID,
		RedirectURI:         testRedirect,
		Scope:               "openid profile email",
		State:               "xyz",
		CodeChallenge:       cryptox.S256Challenge("verifier-verifier-verifier-verifier-verifier"),
		CodeChallengeMethod: cryptox.PKCEMethodS256,
	}
}

func TestBeginAuthorizationValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.seedClient(t, "cli_portal")
	user := env.seedUser(t, "ada@example.com")
	sess := NewSession(user.ID, jwtx.AMRPassword)

	tests := []struct {
		name         string
		mutate       func(r *AuthorizeRequest)
		want         error
		redirectable bool
	}{
		{"missing client_id", func(r *AuthorizeRequest) { r.ClientID = "" }, ErrInvalidRequest, false},
		{"missing redirect_uri", func(r *AuthorizeRequest) { r.RedirectURI = "" }, ErrInvalidRequest, false},
		{"unknown client", func(r *AuthorizeRequest) { r.ClientID = "cli_unknown" }, ErrInvalidClient, false},
		{"unregistered redirect", func(r *AuthorizeRequest) { r.RedirectURI = testRedirect + "/" }, ErrInvalidRequest, false},
		{"redirect differs in case", func(r *AuthorizeRequest) { r.RedirectURI = strings.ToUpper(testRedirect) }, ErrInvalidRequest, false},
		{"unknown client with bad redirect", func(r *AuthorizeRequest) {
			r.ClientID = "cli_unknown"
			r.RedirectURI = "https://evil.example.com"
		}, ErrInvalidClient, false},
		{"implicit flow", func(r *AuthorizeRequest) { r.ResponseType = "token" }, ErrUnsupportedResponseType, true},
		{"pkce missing", func(r *AuthorizeRequest) {
			r.CodeChallenge = ""
			r.CodeChallengeMethod = ""
		}, ErrInvalidRequest, true},
		{"pkce method without challenge", func(r *AuthorizeRequest) { r.CodeChallenge = "" }, ErrInvalidRequest, true},
		{"unsupported pkce method", func(r *AuthorizeRequest) { r.CodeChallengeMethod = "S512" }, ErrInvalidRequest, true},
		{"unknown scope", func(r *AuthorizeRequest) { r.Scope = "openid admin" }, ErrInvalidScope, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest(client.ID)
			tt.mutate(&req)

			_, err := env.authorize.BeginAuthorization(ctx, req, &sess)
			require.ErrorIs(t, err, tt.want)

			var aerr *AuthorizeError
			require.ErrorAs(t, err, &aerr)
			require.Equal(t, tt.redirectable, aerr.Redirectable())
			if tt.redirectable {
				require.Equal(t, testRedirect, aerr.RedirectURI)
				require.Equal(t, "xyz", aerr.State)
			}
		})
	}
}

func TestBeginAuthorizationWithoutSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.seedClient(t, "cli_portal")

	t.Run("parks the request until login", func(t *testing.T) {
		req := validRequest(client.ID)

		out, err := env.authorize.BeginAuthorization(ctx, req, nil)
		require.NoError(t, err)
		require.Equal(t, OutcomeLoginRequired, out.Kind)
		require.NotEmpty(t, out.PendingKey)
		require.Equal(t, "/login?pending="+url.QueryEscape(out.PendingKey), out.RedirectURL)

		resume, err := env.authorize.ResumeAuthorization(ctx, out.PendingKey)
		require.NoError(t, err)

		u, err := url.Parse(resume)
		require.NoError(t, err)
		require.Equal(t, "/oauth/authorize", u.Path)
		require.Equal(t, req.ClientID, u.Query().Get("client_id"))
		require.Equal(t, req.State, u.Query().Get("state"))
		require.Equal(t, req.CodeChallenge, u.Query().Get("code_challenge"))

		_, err = env.authorize.ResumeAuthorization(ctx, out.PendingKey)
		require.ErrorIs(t, err, ErrPendingNotFound)
	})

	t.Run("pending key is stored hashed", func(t *testing.T) {
		out, err := env.authorize.BeginAuthorization(ctx, validRequest(client.ID), nil)
		require.NoError(t, err)

		_, err = env.store.PendingAuthorizations().ConsumePendingAuthorization(ctx, out.PendingKey)
		require.Error(t, err)
	})

	t.Run("prompt none is sent back to the client", func(t *testing.T) {
		req := validRequest(client.ID)
		req.Prompt = "none"

		_, err := env.authorize.BeginAuthorization(ctx, req, nil)
		require.ErrorIs(t, err, ErrLoginRequired)

		var aerr *AuthorizeError
		require.ErrorAs(t, err, &aerr)
		require.True(t, aerr.Redirectable())
		require.Equal(t, "xyz", aerr.State)
	})

	t.Run("session of a deleted user counts as none", func(t *testing.T) {
		sess := NewSession("01HZZZZZZZZZZZZZZZZZZZZZZZ", jwtx.AMRPassword)

		out, err := env.authorize.BeginAuthorization(ctx, validRequest(client.ID), &sess)
		require.NoError(t, err)
		require.Equal(t, OutcomeLoginRequired, out.Kind)
	})
}

func TestConsentFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.seedClient(t, "cli_portal")
	user := env.seedUser(t, "ada@example.com")
	sess := NewSession(user.ID, jwtx.AMRPassword)

	req := validRequest(client.ID)

	out, err := env.authorize.BeginAuthorization(ctx, req, &sess)
	require.NoError(t, err)
	require.Equal(t, OutcomeConsentRequired, out.Kind)
	require.True(t, strings.HasPrefix(out.RedirectURL, "/consent?"))

	u, err := url.Parse(out.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, client.ID, u.Query().Get("client_id"))
	require.Equal(t, "xyz", u.Query().Get("state"))

	prompt, err := env.authorize.ConsentPrompt(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "Assessment Portal", prompt.ClientName)
	require.Equal(t, []string{"email", "openid", "profile"}, prompt.Scopes)

	t.Run("denial redirects with access_denied", func(t *testing.T) {
		_, err := env.authorize.DecideConsent(ctx, ConsentDecision{AuthorizeRequest: req, Approved: false}, &sess)
		require.ErrorIs(t, err, ErrAccessDenied)

		var aerr *AuthorizeError
		require.ErrorAs(t, err, &aerr)
		require.Equal(t, testRedirect, aerr.RedirectURI)
		require.Equal(t, "xyz", aerr.State)

		consents, err := env.consents.List(ctx, user.ID)
		require.NoError(t, err)
		require.Empty(t, consents)
	})

	t.Run("decision needs a session", func(t *testing.T) {
		_, err := env.authorize.DecideConsent(ctx, ConsentDecision{AuthorizeRequest: req, Approved: true}, nil)
		require.ErrorIs(t, err, ErrLoginRequired)
	})

	t.Run("approval issues a code", func(t *testing.T) {
		out, err := env.authorize.DecideConsent(ctx, ConsentDecision{AuthorizeRequest: req, Approved: true}, &sess)
		require.NoError(t, err)
		require.Equal(t, OutcomeIssueCode, out.Kind)

		code, state := codeFrom(t, out.RedirectURL)
		require.Equal(t, "xyz", state)

		// only the fingerprint is stored
		_, err = env.store.AuthorizationCodes().ConsumeAuthorizationCode(ctx, code, client.ID, testRedirect)
		require.Error(t, err)
	})

	t.Run("existing consent skips the prompt regardless of scope order", func(t *testing.T) {
		again := validRequest(client.ID)
		again.Scope = "email openid profile email"

		out, err := env.authorize.BeginAuthorization(ctx, again, &sess)
		require.NoError(t, err)
		require.Equal(t, OutcomeIssueCode, out.Kind)
	})

	t.Run("approving twice keeps one consent", func(t *testing.T) {
		_, err := env.authorize.DecideConsent(ctx, ConsentDecision{AuthorizeRequest: req, Approved: true}, &sess)
		require.NoError(t, err)

		consents, err := env.consents.List(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, consents, 1)
	})

	t.Run("a different scope set needs new consent", func(t *testing.T) {
		other := validRequest(client.ID)
		other.Scope = "openid"

		out, err := env.authorize.BeginAuthorization(ctx, other, &sess)
		require.NoError(t, err)
		require.Equal(t, OutcomeConsentRequired, out.Kind)
	})

	t.Run("prompt none without consent", func(t *testing.T) {
		other := validRequest(client.ID)
		other.Scope = "openid tenant"
		other.Prompt = "none"

		_, err := env.authorize.BeginAuthorization(ctx, other, &sess)
		require.ErrorIs(t, err, ErrConsentRequired)
	})
}

func TestPlatformClientSkipsConsent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	client := env.seedClient(t, env.authorize.PlatformClientID)
	user := env.seedUser(t, "ada@example.com")
	sess := NewSession(user.ID, jwtx.AMRPassword)

	out, err := env.authorize.BeginAuthorization(ctx, validRequest(client.ID), &sess)
	require.NoError(t, err)
	require.Equal(t, OutcomeIssueCode, out.Kind)

	consents, err := env.consents.List(ctx, user.ID)
	require.NoError(t, err)
	require.Empty(t, consents)
}

func TestNormalizePKCEMethod(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", cryptox.PKCEMethodPlain, true},
		{"plain", cryptox.PKCEMethodPlain, true},
		{"s256", cryptox.PKCEMethodS256, true},
		{"S256", cryptox.PKCEMethodS256, true},
		{"S512", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizePKCEMethod(tt.in)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}
