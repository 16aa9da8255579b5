package service

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := &BootstrapService{Store: env.store}

	data := domain.BootstrapData{
		AdminEmail: "Root@Example.com",
		PlatformClient: domain.Client{
			ID:           "cli_platform",
			Environment:  testEnvironment,
			RedirectURIs: []string{testRedirect},
		},
	}

	res, err := svc.Bootstrap(ctx, data)
	require.NoError(t, err)
	require.NotEmpty(t, res.AdminUserID)
	require.NotEmpty(t, res.GeneratedPassword)
	require.True(t, res.ClientCreated)

	admin, err := env.store.Users().GetUserByID(ctx, res.AdminUserID)
	require.NoError(t, err)
	require.Equal(t, "root@example.com", admin.Email)
	require.Equal(t, domain.RoleGlobalAdmin, admin.Role)
	require.True(t, domain.CapabilitiesOf(admin).CanManageKeys())

	_, _, err = env.login.Authenticate(ctx, "root@example.com", res.GeneratedPassword, "")
	require.NoError(t, err)

	client, err := env.store.Clients().GetClientByID(ctx, "cli_platform")
	require.NoError(t, err)
	require.True(t, client.Protected)
	require.True(t, client.PKCERequired)
	require.False(t, client.IsConfidential())

	t.Run("second start changes nothing", func(t *testing.T) {
		data.AdminEmail = "someone-else@example.com"
		again, err := svc.Bootstrap(ctx, data)
		require.NoError(t, err)
		require.Empty(t, again.AdminUserID)
		require.False(t, again.ClientCreated)

		_, err = env.store.Users().GetUserByEmail(ctx, "someone-else@example.com")
		require.Error(t, err)
	})
}

func TestBootstrapWithoutAdminEmail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	svc := &BootstrapService{Store: env.store}

	res, err := svc.Bootstrap(ctx, domain.BootstrapData{AdminPassword: "secret"})
	require.NoError(t, err)
	require.Empty(t, res.AdminUserID)
	require.Empty(t, res.PlatformClientID)
}
