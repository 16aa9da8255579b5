package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
)

const tenantColumns = `id, name, logo_url, primary_color, self_provisioning, external_tenant_id,
	admin_consent_granted_at, created_at, updated_at`

type tenantsRepo struct {
	db dbtx
}

func scanTenant(row scanner) (domain.Tenant, error) {
	var (
		t                    domain.Tenant
		externalID           sql.NullString
		consentAt            sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&t.ID, &t.Name, &t.LogoURL, &t.PrimaryColor, &t.SelfProvisioning, &externalID,
		&consentAt, &createdAt, &updatedAt)
	if err != nil {
		return domain.Tenant{}, mapNotFound(err)
	}

	t.ExternalTenantID = mapNullString(externalID)
	t.AdminConsentGrantedAt = mapNullTimePtr(consentAt)
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return t, nil
}

func (r *tenantsRepo) GetTenantByID(ctx context.Context, id string) (domain.Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id))
}

func (r *tenantsRepo) GetTenantByExternalID(ctx context.Context, externalID string) (domain.Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE external_tenant_id = ?`, externalID))
}

func (r *tenantsRepo) GetTenantByVerifiedDomain(ctx context.Context, domainName string) (domain.Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx, `
		SELECT `+prefixColumns("t", tenantColumns)+`
		FROM tenants t
		JOIN tenant_domains d ON d.tenant_id = t.id
		WHERE d.domain = ? AND d.verified = 1`,
		strings.ToLower(domainName),
	))
}

func (r *tenantsRepo) CreateTenant(ctx context.Context, t domain.Tenant) error {
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.LogoURL, t.PrimaryColor, t.SelfProvisioning, mapStringNull(t.ExternalTenantID),
		mapOptionalTime(t.AdminConsentGrantedAt), toMillis(t.CreatedAt), toMillis(now),
	)
	return mapConstraint(err)
}

func (r *tenantsRepo) AddDomain(ctx context.Context, d domain.TenantDomain) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenant_domains (id, tenant_id, domain, verified, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.TenantID, strings.ToLower(d.Domain), d.Verified, toMillis(d.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *tenantsRepo) ListDomains(ctx context.Context, tenantID string) ([]domain.TenantDomain, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, domain, verified, created_at
		FROM tenant_domains WHERE tenant_id = ? ORDER BY domain`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []domain.TenantDomain
	for rows.Next() {
		var (
			d         domain.TenantDomain
			createdAt int64
		)
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Domain, &d.Verified, &createdAt); err != nil {
			return nil, err
		}
		d.CreatedAt = fromMillis(createdAt)
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

func (r *tenantsRepo) SetExternalID(ctx context.Context, tenantID, externalID string) error {
	return mapConstraint(requireAffected(r.db.ExecContext(ctx,
		`UPDATE tenants SET external_tenant_id = ?, updated_at = ? WHERE id = ?`,
		mapStringNull(externalID), toMillis(time.Now()), tenantID,
	)))
}

// MarkAdminConsentGranted keeps the first grant time on repeated calls.
func (r *tenantsRepo) MarkAdminConsentGranted(ctx context.Context, tenantID string, now time.Time) (domain.Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx, `
		UPDATE tenants
		SET admin_consent_granted_at = COALESCE(admin_consent_granted_at, ?1), updated_at = ?1
		WHERE id = ?2
		RETURNING `+tenantColumns,
		toMillis(now), tenantID,
	))
}

// prefixColumns qualifies a column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
