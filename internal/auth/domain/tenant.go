package domain

import "time"

// Tenant is a customer organisation.
type Tenant struct {
	ID           string
	Name         string
	LogoURL      string
	PrimaryColor string

	// SelfProvisioning lets unknown users from a verified domain join
	// without an invitation.
	SelfProvisioning bool

	// ExternalTenantID is the identity provider's directory id, unique.
	ExternalTenantID string

	AdminConsentGrantedAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// TenantDomain is an email domain owned by a tenant.
type TenantDomain struct {
	ID        string
	TenantID  string
	Domain    string // lower-case registrable domain
	Verified  bool
	CreatedAt time.Time
}
