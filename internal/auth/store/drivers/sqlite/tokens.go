package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
)

const tokenColumns = `id, access_token_hash, refresh_token_hash, user_id, client_id, scope, token_type,
	session_id, amr, auth_time, access_expires_at, refresh_expires_at, revoked_at, created_at`

type tokensRepo struct {
	db dbtx
}

func scanToken(row scanner) (domain.Token, error) {
	var (
		t                               domain.Token
		refreshHash                     sql.NullString
		amr                             string
		authTime, accessExp, refreshExp int64
		revokedAt                       sql.NullInt64
		createdAt                       int64
	)
	err := row.Scan(&t.ID, &t.AccessTokenHash, &refreshHash, &t.UserID, &t.ClientID, &t.Scope, &t.TokenType,
		&t.SessionID, &amr, &authTime, &accessExp, &refreshExp, &revokedAt, &createdAt)
	if err != nil {
		return domain.Token{}, mapNotFound(err)
	}

	t.RefreshTokenHash = mapNullString(refreshHash)
	t.AMR = splitAndFilter(amr)
	t.AuthTime = fromMillis(authTime)
	t.AccessExpiresAt = fromMillis(accessExp)
	t.RefreshExpiresAt = fromMillis(refreshExp)
	t.RevokedAt = mapNullTimePtr(revokedAt)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

func (r *tokensRepo) CreateToken(ctx context.Context, t domain.Token) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.TokenType == "" {
		t.TokenType = domain.TokenTypeBearer
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (`+tokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.AccessTokenHash, mapStringNull(t.RefreshTokenHash), t.UserID, t.ClientID, t.Scope, t.TokenType,
		t.SessionID, joinFields(t.AMR), toMillis(t.AuthTime), toMillis(t.AccessExpiresAt),
		toMillis(t.RefreshExpiresAt), mapOptionalTime(t.RevokedAt), toMillis(t.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *tokensRepo) GetTokenByAccessHash(ctx context.Context, hash string) (domain.Token, error) {
	return scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE access_token_hash = ?`, hash))
}

func (r *tokensRepo) GetTokenByRefreshHash(ctx context.Context, hash string) (domain.Token, error) {
	return scanToken(r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE refresh_token_hash = ?`, hash))
}

func (r *tokensRepo) RevokeByRefreshHash(ctx context.Context, hash string, now time.Time) (domain.Token, error) {
	return scanToken(r.db.QueryRowContext(ctx, `
		UPDATE tokens SET revoked_at = ?
		WHERE refresh_token_hash = ? AND revoked_at IS NULL
		RETURNING `+tokenColumns,
		toMillis(now), hash,
	))
}

// RevokeByHash leaves already revoked pairs untouched and reports success
// for unknown hashes; revocation of an unknown token is not an error.
func (r *tokensRepo) RevokeByHash(ctx context.Context, hash string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tokens SET revoked_at = ?
		WHERE (access_token_hash = ? OR refresh_token_hash = ?) AND revoked_at IS NULL`,
		toMillis(now), hash, hash,
	)
	return err
}

func (r *tokensRepo) RevokeUserClientTokens(ctx context.Context, userID, clientID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tokens SET revoked_at = ?
		WHERE user_id = ? AND client_id = ? AND revoked_at IS NULL`,
		toMillis(now), userID, clientID,
	)
	return err
}

// DeleteExpiredTokens keeps a pair until both halves are expired.
func (r *tokensRepo) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpired(ctx, r.db,
		`DELETE FROM tokens WHERE refresh_expires_at <= ?1 AND access_expires_at <= ?1`, now)
}
