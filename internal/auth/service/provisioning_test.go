package service

import (
	"context"
	"net/url"
	"testing"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/internal/auth/tenancy"
	"github.com/aussiebroadwan/maturity/pkg/idx"
	"github.com/stretchr/testify/require"
)

type fakeConsentLinker struct{}

func (fakeConsentLinker) AdminConsentURL(tenantID, redirectURI, state string) (string, error) {
	q := url.Values{"redirect_uri": {redirectURI}, "state": {state}}
	return "https://idp.example.com/" + tenantID + "/adminconsent?" + q.Encode(), nil
}

func newProvisioning(t *testing.T, allowRegistration bool) (*ProvisioningService, *testEnv) {
	t.Helper()

	env := newTestEnv(t)
	return &ProvisioningService{
		Store:                   env.store,
		Classifier:              tenancy.NewClassifier(),
		AllowTenantRegistration: allowRegistration,
		AdminConsent:            fakeConsentLinker{},
		AdminConsentRedirectURL: "https://auth.test/admin-consent/done",
	}, env
}

func identity(subject, email, tid string) domain.Identity {
	return domain.Identity{Provider: "entra", Subject: subject, Email: email, Name: "", TenantID: tid}
}

func seedTenant(t *testing.T, env *testEnv, domainName, externalID string, selfProvisioning bool) domain.Tenant {
	t.Helper()
	ctx := context.Background()

	tenant := domain.Tenant{
		ID:               idx.New().String(),
		Name:             tenancy.TenantName(domainName),
		SelfProvisioning: selfProvisioning,
		ExternalTenantID: externalID,
	}
	require.NoError(t, env.store.Tenants().CreateTenant(ctx, tenant))
	require.NoError(t, env.store.Tenants().AddDomain(ctx, domain.TenantDomain{
		ID:       idx.New().String(),
		TenantID: tenant.ID,
		Domain:   domainName,
		Verified: true,
	}))
	return tenant
}

func TestProvisionPublicDomain(t *testing.T) {
	ctx := context.Background()
	svc, _ := newProvisioning(t, false)

	u, err := svc.ProvisionOrLink(ctx, identity("sub-1", "Grace@Gmail.com", ""))
	require.NoError(t, err)
	require.Equal(t, "grace@gmail.com", u.Email)
	require.Equal(t, "grace", u.Name)
	require.Empty(t, u.TenantID)
	require.Equal(t, domain.RoleMember, u.Role)
	require.True(t, u.EmailVerified)
	require.Equal(t, "entra", u.Provider)
	require.Equal(t, "sub-1", u.ProviderSubject)

	t.Run("next login returns the same user", func(t *testing.T) {
		again, err := svc.ProvisionOrLink(ctx, identity("sub-1", "renamed@gmail.com", ""))
		require.NoError(t, err)
		require.Equal(t, u.ID, again.ID)
		require.Equal(t, "grace@gmail.com", again.Email)
	})
}

func TestProvisionLinksExistingEmail(t *testing.T) {
	ctx := context.Background()
	svc, env := newProvisioning(t, false)

	local := env.seedUser(t, "ada@contoso.com")

	u, err := svc.ProvisionOrLink(ctx, identity("sub-ada", "ADA@contoso.com", "tid-contoso"))
	require.NoError(t, err)
	require.Equal(t, local.ID, u.ID)
	require.Equal(t, "entra", u.Provider)
	require.Equal(t, "sub-ada", u.ProviderSubject)
	require.True(t, u.EmailVerified)
	require.NotEmpty(t, u.PasswordHash)

	t.Run("unverified email is not linked", func(t *testing.T) {
		other := env.seedUser(t, "alan@contoso.com")
		unverified := false
		id := identity("sub-alan", "alan@contoso.com", "tid-contoso")
		id.EmailVerified = &unverified

		_, err := svc.ProvisionOrLink(ctx, id)
		require.ErrorIs(t, err, ErrEmailNotVerified)

		got, err := env.store.Users().GetUserByID(ctx, other.ID)
		require.NoError(t, err)
		require.Empty(t, got.ProviderSubject)
	})

	t.Run("another subject for the same email conflicts", func(t *testing.T) {
		_, err := svc.ProvisionOrLink(ctx, identity("sub-mallory", "ada@contoso.com", "tid-contoso"))
		require.ErrorIs(t, err, ErrIdentityConflict)
	})
}

func TestProvisionOrganisationDomain(t *testing.T) {
	ctx := context.Background()

	t.Run("registration disabled", func(t *testing.T) {
		svc, env := newProvisioning(t, false)

		_, err := svc.ProvisionOrLink(ctx, identity("sub-1", "grace@contoso.com", "tid-contoso"))
		require.ErrorIs(t, err, ErrRegistrationDisabled)

		_, err = env.store.Users().GetUserByEmail(ctx, "grace@contoso.com")
		require.Error(t, err)
		_, err = env.store.Tenants().GetTenantByVerifiedDomain(ctx, "contoso.com")
		require.Error(t, err)
	})

	t.Run("first user registers the tenant", func(t *testing.T) {
		svc, env := newProvisioning(t, true)

		first, err := svc.ProvisionOrLink(ctx, identity("sub-1", "grace@mail.contoso.com", "tid-contoso"))
		require.NoError(t, err)
		require.Equal(t, domain.RoleTenantAdmin, first.Role)
		require.NotEmpty(t, first.TenantID)

		tenant, err := env.store.Tenants().GetTenantByVerifiedDomain(ctx, "contoso.com")
		require.NoError(t, err)
		require.Equal(t, first.TenantID, tenant.ID)
		require.Equal(t, "Contoso", tenant.Name)
		require.Equal(t, "tid-contoso", tenant.ExternalTenantID)
		require.True(t, tenant.SelfProvisioning)

		second, err := svc.ProvisionOrLink(ctx, identity("sub-2", "alan@contoso.com", "tid-contoso"))
		require.NoError(t, err)
		require.Equal(t, tenant.ID, second.TenantID)
		require.Equal(t, domain.RoleMember, second.Role)

		users, err := svc.ListTenantUsers(ctx, tenant.ID)
		require.NoError(t, err)
		require.Len(t, users, 2)
	})

	t.Run("self provisioning disabled", func(t *testing.T) {
		svc, env := newProvisioning(t, true)
		seedTenant(t, env, "contoso.com", "", false)

		_, err := svc.ProvisionOrLink(ctx, identity("sub-1", "grace@contoso.com", ""))
		require.ErrorIs(t, err, ErrSelfProvisioningDisabled)

		var perr *ProvisioningError
		require.ErrorAs(t, err, &perr)
		require.Equal(t, "self_provisioning_disabled", perr.Code)

		_, err = env.store.Users().GetUserByEmail(ctx, "grace@contoso.com")
		require.Error(t, err)
	})

	t.Run("directory id wins over domain", func(t *testing.T) {
		svc, env := newProvisioning(t, false)
		tenant := seedTenant(t, env, "contoso.com", "tid-contoso", true)

		u, err := svc.ProvisionOrLink(ctx, identity("sub-1", "grace@contoso-research.com", "tid-contoso"))
		require.NoError(t, err)
		require.Equal(t, tenant.ID, u.TenantID)
	})

	t.Run("domain match bound to another directory is refused", func(t *testing.T) {
		svc, env := newProvisioning(t, true)
		seedTenant(t, env, "contoso.com", "tid-contoso", true)

		_, err := svc.ProvisionOrLink(ctx, identity("sub-evil", "mallory@contoso.com", "tid-attacker"))
		require.ErrorIs(t, err, ErrTenantDirectoryMismatch)

		_, err = env.store.Users().GetUserByEmail(ctx, "mallory@contoso.com")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("domain match without directory id joins", func(t *testing.T) {
		svc, env := newProvisioning(t, false)
		tenant := seedTenant(t, env, "contoso.com", "tid-contoso", true)

		u, err := svc.ProvisionOrLink(ctx, identity("sub-1", "grace@contoso.com", ""))
		require.NoError(t, err)
		require.Equal(t, tenant.ID, u.TenantID)
	})

	t.Run("directory id is recorded on first sight", func(t *testing.T) {
		svc, env := newProvisioning(t, false)
		tenant := seedTenant(t, env, "contoso.com", "", true)

		_, err := svc.ProvisionOrLink(ctx, identity("sub-1", "grace@contoso.com", "tid-contoso"))
		require.NoError(t, err)

		got, err := env.store.Tenants().GetTenantByExternalID(ctx, "tid-contoso")
		require.NoError(t, err)
		require.Equal(t, tenant.ID, got.ID)
	})
}

func TestProvisionRejectsIncompleteIdentity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newProvisioning(t, true)

	for name, id := range map[string]domain.Identity{
		"no subject": identity("", "grace@contoso.com", ""),
		"no email":   identity("sub-1", " ", ""),
		"bad email":  identity("sub-1", "not-an-email", ""),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ProvisionOrLink(ctx, id)
			require.ErrorIs(t, err, ErrMissingIdentity)
		})
	}
}

func TestAdminConsent(t *testing.T) {
	ctx := context.Background()
	svc, env := newProvisioning(t, false)
	tenant := seedTenant(t, env, "contoso.com", "tid-contoso", true)

	status, err := svc.AdminConsentStatus(ctx, tenant.ID)
	require.NoError(t, err)
	require.False(t, status.Granted)
	require.Nil(t, status.GrantedAt)

	link, err := svc.AdminConsentURL(ctx, tenant.ID)
	require.NoError(t, err)
	require.Contains(t, link, "/tid-contoso/adminconsent?")
	require.Contains(t, link, "state="+tenant.ID)

	first, err := svc.MarkAdminConsentGranted(ctx, tenant.ID)
	require.NoError(t, err)
	require.True(t, first.Granted)
	require.NotNil(t, first.GrantedAt)

	second, err := svc.MarkAdminConsentGranted(ctx, tenant.ID)
	require.NoError(t, err)
	require.True(t, first.GrantedAt.Equal(*second.GrantedAt))

	t.Run("unknown tenant", func(t *testing.T) {
		_, err := svc.AdminConsentStatus(ctx, "nope")
		require.ErrorIs(t, err, ErrTenantNotFound)
		_, err = svc.MarkAdminConsentGranted(ctx, "nope")
		require.ErrorIs(t, err, ErrTenantNotFound)
		_, err = svc.ListTenantUsers(ctx, "nope")
		require.ErrorIs(t, err, ErrTenantNotFound)
	})
}
