package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
)

const consentColumns = `id, user_id, client_id, scopes, scope_hash, created_at, last_used_at, revoked_at`

type consentsRepo struct {
	db dbtx
}

func scanConsent(row scanner, extra ...any) (domain.UserConsent, error) {
	var (
		c                     domain.UserConsent
		scopes                string
		createdAt, lastUsedAt int64
		revokedAt             sql.NullInt64
	)
	dest := append([]any{&c.ID, &c.UserID, &c.ClientID, &scopes, &c.ScopeHash, &createdAt, &lastUsedAt, &revokedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.UserConsent{}, mapNotFound(err)
	}

	c.Scopes = splitAndFilter(scopes)
	c.CreatedAt = fromMillis(createdAt)
	c.LastUsedAt = fromMillis(lastUsedAt)
	c.RevokedAt = mapNullTimePtr(revokedAt)
	return c, nil
}

func (r *consentsRepo) GetActiveConsent(ctx context.Context, userID, clientID, scopeHash string) (domain.UserConsent, error) {
	return scanConsent(r.db.QueryRowContext(ctx, `
		SELECT `+consentColumns+` FROM user_consents
		WHERE user_id = ? AND client_id = ? AND scope_hash = ? AND revoked_at IS NULL`,
		userID, clientID, scopeHash,
	))
}

func (r *consentsRepo) UpsertConsent(ctx context.Context, c domain.UserConsent) (domain.UserConsent, error) {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastUsedAt.IsZero() {
		c.LastUsedAt = c.CreatedAt
	}
	stored, err := scanConsent(r.db.QueryRowContext(ctx, `
		INSERT INTO user_consents (id, user_id, client_id, scopes, scope_hash, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, client_id, scope_hash) WHERE revoked_at IS NULL
		DO UPDATE SET last_used_at = excluded.last_used_at
		RETURNING `+consentColumns,
		c.ID, c.UserID, c.ClientID, joinFields(c.Scopes), c.ScopeHash,
		toMillis(c.CreatedAt), toMillis(c.LastUsedAt),
	))
	return stored, mapConstraint(err)
}

func (r *consentsRepo) TouchConsent(ctx context.Context, id string, now time.Time) error {
	return requireAffected(r.db.ExecContext(ctx,
		`UPDATE user_consents SET last_used_at = ? WHERE id = ? AND revoked_at IS NULL`,
		toMillis(now), id,
	))
}

func (r *consentsRepo) ListActiveConsents(ctx context.Context, userID string) ([]domain.UserConsent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT uc.id, uc.user_id, uc.client_id, uc.scopes, uc.scope_hash, uc.created_at,
		       uc.last_used_at, uc.revoked_at, c.name
		FROM user_consents uc
		JOIN clients c ON c.id = uc.client_id
		WHERE uc.user_id = ? AND uc.revoked_at IS NULL
		ORDER BY uc.created_at DESC, uc.id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var consents []domain.UserConsent
	for rows.Next() {
		var name string
		c, err := scanConsent(rows, &name)
		if err != nil {
			return nil, err
		}
		c.ClientName = name
		consents = append(consents, c)
	}
	return consents, rows.Err()
}

// RevokeConsent only matches the user's own active consents, so revoking
// someone else's id looks exactly like revoking an unknown one.
func (r *consentsRepo) RevokeConsent(ctx context.Context, userID, id string, now time.Time) (domain.UserConsent, error) {
	return scanConsent(r.db.QueryRowContext(ctx, `
		UPDATE user_consents SET revoked_at = ?
		WHERE id = ? AND user_id = ? AND revoked_at IS NULL
		RETURNING `+consentColumns,
		toMillis(now), id, userID,
	))
}
