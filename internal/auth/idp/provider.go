// Package idp is the client side of federated login: it drives the
// authorization code + PKCE exchange against an external OpenID provider
// and turns what comes back into a domain.Identity.
package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/google/go-querystring/query"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotConfigured    = errors.New("idp: provider not configured")
	ErrExchange         = errors.New("idp: code exchange failed")
	ErrInvalidIDToken   = errors.New("idp: invalid id_token")
	ErrMissingClaims    = errors.New("idp: subject and email are required")
	ErrUserInfo         = errors.New("idp: userinfo request failed")
	ErrNoIdentitySource = errors.New("idp: provider returned neither id_token nor userinfo")
)

// Config describes one external OpenID provider.
type Config struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	JWKSURL      string
	UserInfoURL  string
	Scopes       []string

	// Issuer is the expected iss of id_tokens. A literal "{tenantid}" is
	// replaced by the token's tid claim, for multi-tenant directories.
	Issuer string

	// AdminConsentURL is the provider's tenant-wide consent page. A literal
	// "{tenant}" is replaced by the tenant's directory id.
	AdminConsentURL string

	HTTPClient *http.Client
	Leeway     time.Duration

	// KeyRefreshInterval bounds how often an unknown kid refetches the
	// provider JWKS.
	KeyRefreshInterval time.Duration
}

// Provider is one configured external identity provider.
type Provider struct {
	name        string
	oauth       oauth2.Config
	issuer      string
	jwksURL     string
	userInfoURL string
	consentURL  string
	client      *http.Client
	leeway      time.Duration

	keys            *jwtx.KeySet
	fetches         singleflight.Group
	refreshInterval time.Duration
	lastFetch       time.Time
}

// New validates cfg and builds a Provider. Keys are fetched lazily on the
// first id_token.
func New(cfg Config) (*Provider, error) {
	if cfg.Name == "" || cfg.ClientID == "" || cfg.AuthURL == "" || cfg.TokenURL == "" {
		return nil, ErrNotConfigured
	}
	if cfg.JWKSURL == "" && cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("%w: %s needs a JWKS or userinfo URL", ErrNotConfigured, cfg.Name)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.KeyRefreshInterval <= 0 {
		cfg.KeyRefreshInterval = time.Minute
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = time.Minute
	}

	return &Provider{
		name: cfg.Name,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		issuer:          cfg.Issuer,
		jwksURL:         cfg.JWKSURL,
		userInfoURL:     cfg.UserInfoURL,
		consentURL:      cfg.AdminConsentURL,
		client:          client,
		leeway:          cfg.Leeway,
		keys:            jwtx.NewKeySet(),
		refreshInterval: cfg.KeyRefreshInterval,
	}, nil
}

// Name is the provider name used in URLs and on federated users.
func (p *Provider) Name() string { return p.name }

// AuthCodeURL returns the provider authorization URL for state, bound to
// verifier by an S256 challenge.
func (p *Provider) AuthCodeURL(state, verifier, redirectURI string) string {
	return p.oauth.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("redirect_uri", redirectURI),
	)
}

// Exchange redeems code with the bound verifier and returns the verified
// identity. Claims missing from the id_token are filled from userinfo.
func (p *Provider) Exchange(ctx context.Context, code, verifier, redirectURI string) (domain.Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	tok, err := p.oauth.Exchange(ctx, code,
		oauth2.VerifierOption(verifier),
		oauth2.SetAuthURLParam("redirect_uri", redirectURI),
	)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	claims := map[string]any{}
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" && p.jwksURL != "" {
		verified, err := p.verifyIDToken(ctx, raw)
		if err != nil {
			return domain.Identity{}, err
		}
		claims = verified
	}

	identity := identityFromClaims(p.name, claims)
	if identity.Subject == "" || identity.Email == "" || identity.Name == "" {
		if p.userInfoURL == "" {
			if len(claims) == 0 {
				return domain.Identity{}, ErrNoIdentitySource
			}
		} else {
			info, err := p.userInfo(ctx, tok)
			if err != nil {
				return domain.Identity{}, err
			}
			identity = mergeIdentity(identity, identityFromClaims(p.name, info))
		}
	}

	if identity.Subject == "" || identity.Email == "" {
		return domain.Identity{}, ErrMissingClaims
	}
	return identity, nil
}

// adminConsentQuery is the query of a tenant-wide consent request.
type adminConsentQuery struct {
	ClientID    string `url:"client_id"`
	RedirectURI string `url:"redirect_uri"`
	State       string `url:"state,omitempty"`
	Scope       string `url:"scope,omitempty"`
}

// AdminConsentURL builds the link a tenant administrator follows to grant
// the application access for the whole directory.
func (p *Provider) AdminConsentURL(tenantID, redirectURI, state string) (string, error) {
	if p.consentURL == "" {
		return "", fmt.Errorf("%w: %s has no admin consent URL", ErrNotConfigured, p.name)
	}
	if tenantID == "" {
		tenantID = "organizations"
	}

	values, err := query.Values(adminConsentQuery{
		ClientID:    p.oauth.ClientID,
		RedirectURI: redirectURI,
		State:       state,
		Scope:       strings.Join(p.oauth.Scopes, " "),
	})
	if err != nil {
		return "", err
	}

	base := strings.ReplaceAll(p.consentURL, "{tenant}", tenantID)
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + values.Encode(), nil
}
