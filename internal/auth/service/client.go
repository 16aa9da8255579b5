package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/aussiebroadwan/maturity/pkg/idx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

var (
	ErrClientNotFound  = errors.New("client not found")
	ErrClientProtected = errors.New("client is protected and cannot be deleted")
)

// ClientService is the registry of relying parties.
type ClientService struct {
	Store store.Store

	// Environment is the tag clients are registered and looked up under.
	Environment string
}

// CreateClientParams describes a new relying party.
type CreateClientParams struct {
	Name                   string   `validate:"required,max=100"`
	RedirectURIs           []string `validate:"required,min=1,dive,url"`
	PostLogoutRedirectURIs []string `validate:"omitempty,dive,url"`
	GrantTypes             []string `validate:"omitempty,dive,oneof=authorization_code refresh_token"`
	Confidential           bool
	PKCERequired           bool
}

// FindClient returns the client registered under clientID in environment.
// Unknown clients, and clients of another environment, are ErrInvalidClient.
func (s *ClientService) FindClient(ctx context.Context, clientID, environment string) (domain.Client, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return domain.Client{}, ErrInvalidClient
	}

	c, err := s.Store.Clients().GetClient(ctx, clientID, environment)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Client{}, ErrInvalidClient
		}
		return domain.Client{}, err
	}
	return c, nil
}

// VerifySecret compares secret against the client's argon2id hash. Public
// clients hold no secret, so nothing verifies against them.
func (s *ClientService) VerifySecret(c domain.Client, secret string) bool {
	if !c.IsConfidential() || secret == "" {
		cryptox.BurnVerification(secret)
		return false
	}
	return cryptox.VerifyPassword(secret, c.SecretHash) == nil
}

// Authenticate resolves the calling client of a back-channel request.
// Confidential clients must present their secret; a secret presented by
// any client must verify.
func (s *ClientService) Authenticate(ctx context.Context, clientID, secret string) (domain.Client, error) {
	c, err := s.FindClient(ctx, clientID, s.Environment)
	if err != nil {
		if errors.Is(err, ErrInvalidClient) {
			cryptox.BurnVerification(secret)
		}
		return domain.Client{}, err
	}

	if c.IsConfidential() || secret != "" {
		if !s.VerifySecret(c, secret) {
			slogx.FromContext(ctx).Info("client authentication failed", "client_id", c.ID)
			return domain.Client{}, ErrInvalidClient
		}
	}
	return c, nil
}

// CreateClient registers a new client in this service's environment.
//
// Confidential clients get a 256-bit secret which is returned here and
// never again; only its hash is stored. Public clients always require PKCE.
func (s *ClientService) CreateClient(ctx context.Context, p CreateClientParams) (domain.Client, string, error) {
	l := slogx.FromContext(ctx)

	if err := validate.Struct(p); err != nil {
		return domain.Client{}, "", errors.Join(ErrInvalidRequest, err)
	}

	var secret, secretHash string
	if p.Confidential {
		var err error
		secret, err = cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			l.Error("failed to generate client secret", "error", err)
			return domain.Client{}, "", err
		}

		secretHash, err = cryptox.HashPassword(secret)
		if err != nil {
			l.Error("failed to hash client secret", "error", err)
			return domain.Client{}, "", err
		}
	}

	grants := dedupe(p.GrantTypes)
	if len(grants) == 0 {
		grants = []string{domain.GrantTypeAuthorizationCode, domain.GrantTypeRefreshToken}
	}
	if !slices.Contains(grants, domain.GrantTypeAuthorizationCode) {
		return domain.Client{}, "", ErrInvalidRequest
	}

	c := domain.Client{
		ID:                     idx.NewPrefixed("cli"),
		Name:                   strings.TrimSpace(p.Name),
		Environment:            s.Environment,
		SecretHash:             secretHash,
		RedirectURIs:           dedupe(p.RedirectURIs),
		PostLogoutRedirectURIs: dedupe(p.PostLogoutRedirectURIs),
		GrantTypes:             grants,
		PKCERequired:           p.PKCERequired || !p.Confidential,
	}

	if err := s.Store.Clients().CreateClient(ctx, c); err != nil {
		l.Error("failed to create client", "error", err)
		return domain.Client{}, "", err
	}

	l.Info("client created", "client_id", c.ID, "name", c.Name, "confidential", p.Confidential)
	return c, secret, nil
}

// ListClients returns every registered client, newest first.
func (s *ClientService) ListClients(ctx context.Context) ([]domain.Client, error) {
	return s.Store.Clients().ListClients(ctx)
}

// DeleteClient removes a client together with its codes, tokens and
// consents. The platform client is protected.
func (s *ClientService) DeleteClient(ctx context.Context, clientID string) error {
	l := slogx.FromContext(ctx)

	client, err := s.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrClientNotFound
		}
		return err
	}

	if client.Protected {
		l.Warn("attempted to delete protected client", "client_id", clientID)
		return ErrClientProtected
	}

	if err := s.Store.Clients().DeleteClient(ctx, clientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrClientNotFound
		}
		l.Error("failed to delete client", "error", err, "client_id", clientID)
		return err
	}

	l.Info("client deleted", "client_id", clientID)
	return nil
}
