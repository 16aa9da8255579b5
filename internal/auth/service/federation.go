package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
	"golang.org/x/oauth2"
)

var (
	ErrInvalidState    = errors.New("invalid or expired state")
	ErrUnknownProvider = errors.New("unknown identity provider")
)

const defaultStateTTL = 10 * time.Minute

// IdentityProvider is an external identity provider reached through the
// authorization code flow with PKCE. *idp.Provider implements it.
type IdentityProvider interface {
	Name() string
	AuthCodeURL(state, verifier, redirectURI string) string
	Exchange(ctx context.Context, code, verifier, redirectURI string) (domain.Identity, error)
}

// FederationService drives logins through external identity providers.
// In-flight logins live in the sso_auth_states table, keyed by the
// fingerprint of the state value, so any instance can complete a login any
// other instance started.
type FederationService struct {
	Store     store.Store
	Providers map[string]IdentityProvider
	StateTTL  time.Duration
}

// FederatedLogin is a completed round trip through a provider.
type FederatedLogin struct {
	Identity        domain.Identity
	PostLoginTarget string
}

// BeginFederation starts a login at provider. It binds a fresh PKCE
// verifier and the post-login target to a new state value and returns the
// provider's authorization URL. Targets that are not local paths are
// dropped.
func (s *FederationService) BeginFederation(ctx context.Context, provider, returnRedirectURI, postLoginTarget string) (string, error) {
	p, ok := s.Providers[provider]
	if !ok {
		return "", ErrUnknownProvider
	}

	state, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	verifier := oauth2.GenerateVerifier()

	ttl := s.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}

	now := time.Now()
	err = s.Store.SsoStates().CreateSsoState(ctx, domain.SsoAuthState{
		StateHash:       cryptox.FingerprintToken(state),
		Provider:        p.Name(),
		CodeVerifier:    verifier,
		RedirectURI:     returnRedirectURI,
		PostLoginTarget: SafeRedirectTarget(postLoginTarget),
		ExpiresAt:       now.Add(ttl),
		CreatedAt:       now,
	})
	if err != nil {
		return "", err
	}

	slogx.FromContext(ctx).Info("federation started", "provider", p.Name())
	return p.AuthCodeURL(state, verifier, returnRedirectURI), nil
}

// CompleteFederation finishes a login. The state row is consumed before
// anything else happens, so a state works at most once even under
// concurrent callbacks; an expired row is consumed and rejected. Only then
// is the code exchanged with the bound verifier.
func (s *FederationService) CompleteFederation(ctx context.Context, code, state, redirectURI string) (FederatedLogin, error) {
	l := slogx.FromContext(ctx)

	state = strings.TrimSpace(state)
	if state == "" {
		return FederatedLogin{}, ErrInvalidState
	}

	st, err := s.Store.SsoStates().ConsumeSsoState(ctx, cryptox.FingerprintToken(state))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Info("federation state not found")
			return FederatedLogin{}, ErrInvalidState
		}
		return FederatedLogin{}, err
	}
	if st.IsExpired(time.Now()) {
		l.Info("federation state expired", "provider", st.Provider)
		return FederatedLogin{}, ErrInvalidState
	}
	if redirectURI != "" && redirectURI != st.RedirectURI {
		return FederatedLogin{}, ErrInvalidState
	}

	p, ok := s.Providers[st.Provider]
	if !ok {
		return FederatedLogin{}, ErrUnknownProvider
	}

	identity, err := p.Exchange(ctx, code, st.CodeVerifier, st.RedirectURI)
	federationLogins.WithLabelValues(st.Provider, outcome(err)).Inc()
	if err != nil {
		l.Warn("federation exchange failed", "provider", st.Provider, "error", err)
		return FederatedLogin{}, err
	}

	l.Info("federation completed", "provider", st.Provider, "tenant_hint", identity.TenantID)
	return FederatedLogin{Identity: identity, PostLoginTarget: st.PostLoginTarget}, nil
}

// SweepExpiredStates deletes states nobody came back for.
func (s *FederationService) SweepExpiredStates(ctx context.Context) (int64, error) {
	return s.Store.SsoStates().DeleteExpiredSsoStates(ctx, time.Now())
}

// SafeRedirectTarget keeps only local absolute paths, so a login can never
// be turned into an open redirect. Anything else becomes "".
func SafeRedirectTarget(target string) string {
	target = strings.TrimSpace(target)
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return ""
	}
	return target
}
