package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/internal/auth/tenancy"
	"github.com/aussiebroadwan/maturity/pkg/idx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// ProvisioningError is a refusal the end user is shown verbatim, since
// there is something they can do about it.
type ProvisioningError struct {
	Code    string
	Message string
}

func (e *ProvisioningError) Error() string { return e.Message }

var (
	ErrSelfProvisioningDisabled = &ProvisioningError{
		Code:    "self_provisioning_disabled",
		Message: "Your organisation does not allow automatic sign up. Please contact your administrator to be given access.",
	}
	ErrRegistrationDisabled = &ProvisioningError{
		Code:    "registration_disabled",
		Message: "Registration of new organisations is currently disabled.",
	}
	ErrTenantDirectoryMismatch = &ProvisioningError{
		Code:    "tenant_directory_mismatch",
		Message: "Your account belongs to a different directory than the organisation registered for your email domain. Please contact your administrator.",
	}
	ErrEmailNotVerified = &ProvisioningError{
		Code:    "email_not_verified",
		Message: "Your identity provider has not verified your email address. Verify it there and sign in again.",
	}

	ErrIdentityConflict = errors.New("email is already linked to another identity")
	ErrMissingIdentity  = errors.New("identity is missing subject or email")
	ErrTenantNotFound   = errors.New("tenant not found")
)

// AdminConsentLinker builds a provider's tenant-wide admin consent link.
// *idp.Provider implements it.
type AdminConsentLinker interface {
	AdminConsentURL(tenantID, redirectURI, state string) (string, error)
}

// ProvisioningService turns federated identities into local users and
// runs the enterprise rollout steps of a tenant.
type ProvisioningService struct {
	Store      store.Store
	Classifier *tenancy.Classifier

	// AllowTenantRegistration lets an unknown organisational domain create
	// its own tenant on first login.
	AllowTenantRegistration bool

	AdminConsent            AdminConsentLinker
	AdminConsentRedirectURL string
}

// AdminConsentStatus reports whether a tenant's administrator granted the
// identity provider application tenant-wide consent.
type AdminConsentStatus struct {
	TenantID  string     `json:"tenant_id"`
	Granted   bool       `json:"granted"`
	GrantedAt *time.Time `json:"granted_at,omitempty"`
}

// ProvisionOrLink resolves a federated identity to a local user, in one
// transaction:
//
//  1. a user already bound to provider+subject is returned unchanged;
//  2. a user with the same email gets provider+subject linked and the
//     email marked verified, unless the provider said the email is
//     unverified;
//  3. otherwise a user is created. Public mailbox domains give a user with
//     no tenant. Organisational domains join the tenant matched by the
//     provider's tenant id, else by verified domain, if it allows self
//     provisioning and is not bound to another directory; with no tenant
//     at all, a new tenant is registered for the domain (when allowed)
//     and the user becomes its administrator.
//
// Users created here always have a verified email and a provider+subject.
func (s *ProvisioningService) ProvisionOrLink(ctx context.Context, id domain.Identity) (domain.User, error) {
	l := slogx.FromContext(ctx)

	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	if id.Provider == "" || id.Subject == "" || id.Email == "" {
		return domain.User{}, ErrMissingIdentity
	}

	var (
		user   domain.User
		result string
	)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		user, result, err = s.provision(ctx, tx, id)
		return err
	})
	if err != nil {
		provisioningOutcomes.WithLabelValues(provisioningOutcome(err)).Inc()
		return domain.User{}, err
	}

	provisioningOutcomes.WithLabelValues(result).Inc()
	l.Info("federated identity resolved",
		"outcome", result, "user_id", user.ID, "tenant_id", user.TenantID, "provider", id.Provider)
	return user, nil
}

func (s *ProvisioningService) provision(ctx context.Context, tx store.Tx, id domain.Identity) (domain.User, string, error) {
	u, err := tx.Users().GetUserByProvider(ctx, id.Provider, id.Subject)
	switch {
	case err == nil:
		return u, "login", nil
	case !errors.Is(err, store.ErrNotFound):
		return domain.User{}, "", err
	}

	// Linking and tenant matching both trust the email from here on.
	if id.EmailVerified != nil && !*id.EmailVerified {
		return domain.User{}, "", ErrEmailNotVerified
	}

	u, err = tx.Users().GetUserByEmail(ctx, id.Email)
	switch {
	case err == nil:
		if u.Provider == id.Provider && u.ProviderSubject != "" && u.ProviderSubject != id.Subject {
			return domain.User{}, "", ErrIdentityConflict
		}
		if err := tx.Users().LinkProvider(ctx, u.ID, id.Provider, id.Subject); err != nil {
			return domain.User{}, "", err
		}
		u, err = tx.Users().GetUserByID(ctx, u.ID)
		return u, "linked", err
	case !errors.Is(err, store.ErrNotFound):
		return domain.User{}, "", err
	}

	class, err := s.Classifier.Classify(id.Email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("%w: %w", ErrMissingIdentity, err)
	}

	if class.Public {
		u, err := createFederatedUser(ctx, tx, id, domain.RoleMember, "")
		return u, "created", err
	}

	tenant, err := s.findTenant(ctx, tx, id.TenantID, class.Domain)
	switch {
	case err == nil:
		// A domain match never overrides the directory a tenant is bound to.
		if tenant.ExternalTenantID != "" && id.TenantID != "" && tenant.ExternalTenantID != id.TenantID {
			return domain.User{}, "", ErrTenantDirectoryMismatch
		}
		if !tenant.SelfProvisioning {
			return domain.User{}, "", ErrSelfProvisioningDisabled
		}
		if tenant.ExternalTenantID == "" && id.TenantID != "" {
			if err := tx.Tenants().SetExternalID(ctx, tenant.ID, id.TenantID); err != nil {
				return domain.User{}, "", err
			}
		}
		u, err := createFederatedUser(ctx, tx, id, domain.RoleMember, tenant.ID)
		return u, "joined_tenant", err
	case !errors.Is(err, store.ErrNotFound):
		return domain.User{}, "", err
	}

	if !s.AllowTenantRegistration {
		return domain.User{}, "", ErrRegistrationDisabled
	}

	tenant = domain.Tenant{
		ID:               idx.New().String(),
		Name:             tenancy.TenantName(class.Domain),
		SelfProvisioning: true,
		ExternalTenantID: id.TenantID,
	}
	if err := tx.Tenants().CreateTenant(ctx, tenant); err != nil {
		return domain.User{}, "", err
	}
	err = tx.Tenants().AddDomain(ctx, domain.TenantDomain{
		ID:       idx.New().String(),
		TenantID: tenant.ID,
		Domain:   class.Domain,
		Verified: true,
	})
	if err != nil {
		return domain.User{}, "", err
	}

	u, err = createFederatedUser(ctx, tx, id, domain.RoleTenantAdmin, tenant.ID)
	return u, "registered_tenant", err
}

// findTenant prefers the provider's directory id over the email domain.
func (s *ProvisioningService) findTenant(ctx context.Context, tx store.Tx, externalID, domainName string) (domain.Tenant, error) {
	if externalID != "" {
		t, err := tx.Tenants().GetTenantByExternalID(ctx, externalID)
		if !errors.Is(err, store.ErrNotFound) {
			return t, err
		}
	}
	return tx.Tenants().GetTenantByVerifiedDomain(ctx, domainName)
}

func createFederatedUser(ctx context.Context, tx store.Tx, id domain.Identity, role domain.Role, tenantID string) (domain.User, error) {
	if err := role.CheckAssignment(tenantID); err != nil {
		return domain.User{}, err
	}

	name := strings.TrimSpace(id.Name)
	if name == "" {
		name, _, _ = strings.Cut(id.Email, "@")
	}

	u := domain.User{
		ID:              idx.New().String(),
		Email:           id.Email,
		Name:            name,
		Role:            role,
		TenantID:        tenantID,
		Provider:        id.Provider,
		ProviderSubject: id.Subject,
		EmailVerified:   true,
	}
	if err := tx.Users().CreateUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return tx.Users().GetUserByID(ctx, u.ID)
}

func provisioningOutcome(err error) string {
	var pe *ProvisioningError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return "error"
}

// AdminConsentURL is the link a tenant administrator follows to consent to
// the identity provider application for their whole directory.
func (s *ProvisioningService) AdminConsentURL(ctx context.Context, tenantID string) (string, error) {
	t, err := s.tenant(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if s.AdminConsent == nil {
		return "", ErrUnknownProvider
	}
	return s.AdminConsent.AdminConsentURL(t.ExternalTenantID, s.AdminConsentRedirectURL, t.ID)
}

// AdminConsentStatus reports whether admin consent was recorded.
func (s *ProvisioningService) AdminConsentStatus(ctx context.Context, tenantID string) (AdminConsentStatus, error) {
	t, err := s.tenant(ctx, tenantID)
	if err != nil {
		return AdminConsentStatus{}, err
	}
	return adminConsentStatus(t), nil
}

// MarkAdminConsentGranted records the grant. Marking twice keeps the first
// grant time.
func (s *ProvisioningService) MarkAdminConsentGranted(ctx context.Context, tenantID string) (AdminConsentStatus, error) {
	t, err := s.Store.Tenants().MarkAdminConsentGranted(ctx, tenantID, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AdminConsentStatus{}, ErrTenantNotFound
		}
		return AdminConsentStatus{}, err
	}

	slogx.FromContext(ctx).Info("admin consent recorded", "tenant_id", t.ID)
	return adminConsentStatus(t), nil
}

// ListTenantUsers returns the users of a tenant, oldest first.
func (s *ProvisioningService) ListTenantUsers(ctx context.Context, tenantID string) ([]domain.User, error) {
	if _, err := s.tenant(ctx, tenantID); err != nil {
		return nil, err
	}
	return s.Store.Users().ListUsersByTenant(ctx, tenantID)
}

func (s *ProvisioningService) tenant(ctx context.Context, tenantID string) (domain.Tenant, error) {
	t, err := s.Store.Tenants().GetTenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Tenant{}, ErrTenantNotFound
		}
		return domain.Tenant{}, err
	}
	return t, nil
}

func adminConsentStatus(t domain.Tenant) AdminConsentStatus {
	return AdminConsentStatus{
		TenantID:  t.ID,
		Granted:   t.AdminConsentGrantedAt != nil,
		GrantedAt: t.AdminConsentGrantedAt,
	}
}
