package domain

import "errors"

// Role is the single role a user holds.
type Role string

const (
	RoleGlobalAdmin Role = "global_admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleModeler     Role = "modeler"
	RoleMember      Role = "member"

	// RoleLegacyAdmin predates tenants and is treated as RoleGlobalAdmin.
	RoleLegacyAdmin Role = "admin"
)

var ErrTenantRequired = errors.New("domain: role requires a tenant")

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleGlobalAdmin, RoleTenantAdmin, RoleModeler, RoleMember, RoleLegacyAdmin:
		return true
	}
	return false
}

// TenantScoped reports whether the role only makes sense inside a tenant.
func (r Role) TenantScoped() bool {
	return r == RoleTenantAdmin || r == RoleModeler
}

// CheckAssignment enforces that tenant-scoped roles carry a tenant id.
func (r Role) CheckAssignment(tenantID string) error {
	if r.TenantScoped() && tenantID == "" {
		return ErrTenantRequired
	}
	return nil
}

// Capabilities are the permissions a user's role grants, derived once per
// request. Handlers ask these predicates instead of comparing role strings.
type Capabilities struct {
	global   bool
	role     Role
	tenantID string
}

// CapabilitiesOf derives the capabilities of u.
func CapabilitiesOf(u User) Capabilities {
	return Capabilities{
		global:   u.Role == RoleGlobalAdmin || u.Role == RoleLegacyAdmin,
		role:     u.Role,
		tenantID: u.TenantID,
	}
}

// CanManageClients allows registering and deleting relying parties.
func (c Capabilities) CanManageClients() bool { return c.global }

// CanManageKeys allows listing and rotating signing keys.
func (c Capabilities) CanManageKeys() bool { return c.global }

// CanManageUsers allows administering the users of tenantID.
func (c Capabilities) CanManageUsers(tenantID string) bool {
	return c.global || c.ownsTenant(tenantID)
}

// CanManageTenant allows changing tenant settings, including admin consent.
func (c Capabilities) CanManageTenant(tenantID string) bool {
	return c.global || c.ownsTenant(tenantID)
}

// CanEditModels allows authoring assessment models.
func (c Capabilities) CanEditModels() bool {
	return c.global || (c.tenantID != "" && (c.role == RoleTenantAdmin || c.role == RoleModeler))
}

func (c Capabilities) ownsTenant(tenantID string) bool {
	return tenantID != "" && c.role == RoleTenantAdmin && c.tenantID == tenantID
}
