package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
)

const userColumns = `id, email, name, password_hash, role, tenant_id, provider, provider_subject,
	email_verified, totp_secret, totp_confirmed_at, created_at, updated_at`

type usersRepo struct {
	db dbtx
}

func scanUser(row scanner) (domain.User, error) {
	var (
		u                             domain.User
		role                          string
		passwordHash, tenantID        sql.NullString
		provider, subject, totpSecret sql.NullString
		totpConfirmedAt               sql.NullInt64
		createdAt, updatedAt          int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &passwordHash, &role, &tenantID, &provider, &subject,
		&u.EmailVerified, &totpSecret, &totpConfirmedAt, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.PasswordHash = mapNullString(passwordHash)
	u.Role = domain.Role(role)
	u.TenantID = mapNullString(tenantID)
	u.Provider = mapNullString(provider)
	u.ProviderSubject = mapNullString(subject)
	u.TOTPSecret = mapNullString(totpSecret)
	u.TOTPConfirmedAt = mapNullTimePtr(totpConfirmedAt)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, strings.TrimSpace(email)))
}

func (r *usersRepo) GetUserByProvider(ctx context.Context, provider, subject string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = ? AND provider_subject = ?`, provider, subject))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, strings.TrimSpace(u.Email), u.Name, mapStringNull(u.PasswordHash), string(u.Role),
		mapStringNull(u.TenantID), mapStringNull(u.Provider), mapStringNull(u.ProviderSubject),
		u.EmailVerified, mapStringNull(u.TOTPSecret), mapOptionalTime(u.TOTPConfirmedAt),
		toMillis(u.CreatedAt), toMillis(now),
	)
	return mapConstraint(err)
}

func (r *usersRepo) LinkProvider(ctx context.Context, userID, provider, subject string) error {
	return mapConstraint(requireAffected(r.db.ExecContext(ctx, `
		UPDATE users SET provider = ?, provider_subject = ?, email_verified = 1, updated_at = ?
		WHERE id = ?`,
		provider, subject, toMillis(time.Now()), userID,
	)))
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		mapStringNull(newHash), toMillis(time.Now()), userID,
	))
}

func (r *usersRepo) SetTOTPSecret(ctx context.Context, userID, secret string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET totp_secret = ?, totp_confirmed_at = NULL, updated_at = ? WHERE id = ?`,
		mapStringNull(secret), toMillis(time.Now()), userID,
	))
}

func (r *usersRepo) ConfirmTOTP(ctx context.Context, userID string) error {
	now := toMillis(time.Now())
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE users SET totp_confirmed_at = ?, updated_at = ? WHERE id = ? AND totp_secret IS NOT NULL`,
		now, now, userID,
	))
}

func (r *usersRepo) ListUsersByTenant(ctx context.Context, tenantID string) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *usersRepo) HasRole(ctx context.Context, roles ...domain.Role) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}

	args := make([]any, len(roles))
	for i, role := range roles {
		args[i] = string(role)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(roles)), ",")

	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE role IN (`+placeholders+`))`, args...,
	).Scan(&exists)
	return exists, err
}
