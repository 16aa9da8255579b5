package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
)

type pendingAuthorizationsRepo struct {
	db dbtx
}

func (r *pendingAuthorizationsRepo) CreatePendingAuthorization(ctx context.Context, p domain.PendingAuthorization) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pending_authorizations (key_hash, query, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		p.KeyHash, p.Query, toMillis(p.ExpiresAt), toMillis(p.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *pendingAuthorizationsRepo) ConsumePendingAuthorization(
	ctx context.Context,
	keyHash string,
) (domain.PendingAuthorization, error) {
	var (
		p                    domain.PendingAuthorization
		expiresAt, createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM pending_authorizations WHERE key_hash = ?
		RETURNING key_hash, query, expires_at, created_at`,
		keyHash,
	).Scan(&p.KeyHash, &p.Query, &expiresAt, &createdAt)
	if err != nil {
		return domain.PendingAuthorization{}, mapNotFound(err)
	}

	p.ExpiresAt = fromMillis(expiresAt)
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}

func (r *pendingAuthorizationsRepo) DeleteExpiredPendingAuthorizations(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpired(ctx, r.db, `DELETE FROM pending_authorizations WHERE expires_at <= ?`, now)
}
