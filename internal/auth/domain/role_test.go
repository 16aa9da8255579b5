package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapabilities(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		user          User
		clients, keys bool
		usersOfT1     bool
		usersOfT2     bool
		models        bool
	}{
		{"global admin", User{Role: RoleGlobalAdmin}, true, true, true, true, true},
		{"legacy admin", User{Role: RoleLegacyAdmin}, true, true, true, true, true},
		{"tenant admin", User{Role: RoleTenantAdmin, TenantID: "t1"}, false, false, true, false, true},
		{"modeler", User{Role: RoleModeler, TenantID: "t1"}, false, false, false, false, true},
		{"member", User{Role: RoleMember, TenantID: "t1"}, false, false, false, false, false},
		{"tenant admin without tenant", User{Role: RoleTenantAdmin}, false, false, false, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := CapabilitiesOf(tc.user)
			require.Equal(t, tc.clients, c.CanManageClients())
			require.Equal(t, tc.keys, c.CanManageKeys())
			require.Equal(t, tc.usersOfT1, c.CanManageUsers("t1"))
			require.Equal(t, tc.usersOfT1, c.CanManageTenant("t1"))
			require.Equal(t, tc.usersOfT2, c.CanManageUsers("t2"))
			require.Equal(t, tc.models, c.CanEditModels())
		})
	}
}

func TestRoleAssignment(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, RoleTenantAdmin.CheckAssignment(""), ErrTenantRequired)
	require.ErrorIs(t, RoleModeler.CheckAssignment(""), ErrTenantRequired)
	require.NoError(t, RoleTenantAdmin.CheckAssignment("t1"))
	require.NoError(t, RoleMember.CheckAssignment(""))
	require.NoError(t, RoleGlobalAdmin.CheckAssignment(""))

	require.True(t, RoleLegacyAdmin.Valid())
	require.False(t, Role("root").Valid())
}

func TestClientRedirectMatching(t *testing.T) {
	t.Parallel()

	c := Client{
		RedirectURIs:           []string{"https://app.example.com/cb"},
		PostLogoutRedirectURIs: []string{"https://app.example.com/bye"},
		GrantTypes:             []string{GrantTypeAuthorizationCode},
	}

	require.True(t, c.AllowsRedirect("https://app.example.com/cb"))
	require.False(t, c.AllowsRedirect("https://app.example.com/cb/"))
	require.False(t, c.AllowsRedirect("https://app.example.com/cb?x=1"))
	require.False(t, c.AllowsRedirect("HTTPS://app.example.com/cb"))
	require.False(t, c.AllowsRedirect(""))

	require.True(t, c.AllowsPostLogoutRedirect("https://app.example.com/bye"))
	require.False(t, c.AllowsPostLogoutRedirect("https://app.example.com/cb"))

	require.True(t, c.AllowsGrant(GrantTypeAuthorizationCode))
	require.False(t, c.AllowsGrant(GrantTypeRefreshToken))
	require.False(t, c.IsConfidential())
}
