package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/aussiebroadwan/maturity/pkg/idx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

var (
	ErrBootstrapFailedToCreateAdmin  = errors.New("failed to create admin user")
	ErrBootstrapFailedToCreateClient = errors.New("failed to create client")
)

type BootstrapService struct {
	Store store.Store
}

// BootstrapResult reports what first start created. GeneratedPassword is
// only set when the admin password was not configured; it is logged once
// and never stored in plain text.
type BootstrapResult struct {
	AdminUserID       string
	GeneratedPassword string
	PlatformClientID  string
	ClientCreated     bool
}

// Bootstrap makes sure a global administrator and the platform client
// exist. It is safe to run on every start: existing records are left alone.
// Without an admin email no admin is created, and logins are federated only
// until one is.
func (s *BootstrapService) Bootstrap(ctx context.Context, req domain.BootstrapData) (BootstrapResult, error) {
	l := slogx.FromContext(ctx)
	var res BootstrapResult

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := s.ensureAdmin(ctx, tx, req, &res); err != nil {
			return err
		}
		return s.ensurePlatformClient(ctx, tx, req.PlatformClient, &res)
	})
	if err != nil {
		return BootstrapResult{}, err
	}

	if res.AdminUserID != "" {
		l.Info("bootstrap admin created", slog.String("admin_user_id", res.AdminUserID))
	}
	if res.ClientCreated {
		l.Info("platform client registered", slog.String("client_id", res.PlatformClientID))
	}
	return res, nil
}

func (s *BootstrapService) ensureAdmin(ctx context.Context, tx store.Tx, req domain.BootstrapData, res *BootstrapResult) error {
	l := slogx.FromContext(ctx)

	email := strings.ToLower(strings.TrimSpace(req.AdminEmail))
	if email == "" {
		return nil
	}

	exists, err := tx.Users().HasRole(ctx, domain.RoleGlobalAdmin, domain.RoleLegacyAdmin)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	password := req.AdminPassword
	if password == "" {
		password, err = cryptox.GeneratePassword()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBootstrapFailedToCreateAdmin, err)
		}
		res.GeneratedPassword = password
	}

	passHash, err := cryptox.HashPassword(password)
	if err != nil {
		l.Error("failed to hash admin password", slog.Any("error", err))
		return ErrBootstrapFailedToCreateAdmin
	}

	name := strings.TrimSpace(req.AdminName)
	if name == "" {
		name = "Administrator"
	}

	admin := domain.User{
		ID:            idx.New().String(),
		Email:         email,
		Name:          name,
		PasswordHash:  passHash,
		Role:          domain.RoleGlobalAdmin,
		EmailVerified: true,
	}
	if err := tx.Users().CreateUser(ctx, admin); err != nil {
		l.Error("failed to create admin user",
			slog.String("admin_user_id", admin.ID),
			slog.Any("error", err),
		)
		return ErrBootstrapFailedToCreateAdmin
	}

	res.AdminUserID = admin.ID
	return nil
}

func (s *BootstrapService) ensurePlatformClient(ctx context.Context, tx store.Tx, c domain.Client, res *BootstrapResult) error {
	if c.ID == "" {
		return nil
	}
	res.PlatformClientID = c.ID

	_, err := tx.Clients().GetClientByID(ctx, c.ID)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	if c.Name == "" {
		c.Name = "Platform"
	}
	if len(c.GrantTypes) == 0 {
		c.GrantTypes = []string{domain.GrantTypeAuthorizationCode, domain.GrantTypeRefreshToken}
	}
	// The platform client is a browser application; it never holds a secret.
	c.SecretHash = ""
	c.PKCERequired = true
	c.Protected = true

	if err := tx.Clients().CreateClient(ctx, c); err != nil {
		slogx.FromContext(ctx).Error("failed to create platform client",
			slog.String("client_id", c.ID),
			slog.Any("error", err),
		)
		return ErrBootstrapFailedToCreateClient
	}
	res.ClientCreated = true
	return nil
}
