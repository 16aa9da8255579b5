package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
)

const authorizationCodeColumns = `code_hash, client_id, user_id, scope, redirect_uri, code_challenge,
	code_challenge_method, nonce, session_id, amr, auth_time, expires_at, created_at`

type authorizationCodesRepo struct {
	db dbtx
}

func scanAuthorizationCode(row scanner) (domain.AuthorizationCode, error) {
	var (
		c                              domain.AuthorizationCode
		amr                            string
		authTime, expiresAt, createdAt int64
	)
	err := row.Scan(&c.CodeHash, &c.ClientID, &c.UserID, &c.Scope, &c.RedirectURI, &c.CodeChallenge,
		&c.CodeChallengeMethod, &c.Nonce, &c.SessionID, &amr, &authTime, &expiresAt, &createdAt)
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}

	c.AMR = splitAndFilter(amr)
	c.AuthTime = fromMillis(authTime)
	c.ExpiresAt = fromMillis(expiresAt)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func (r *authorizationCodesRepo) CreateAuthorizationCode(ctx context.Context, c domain.AuthorizationCode) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (`+authorizationCodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CodeHash, c.ClientID, c.UserID, c.Scope, c.RedirectURI, c.CodeChallenge,
		c.CodeChallengeMethod, c.Nonce, c.SessionID, joinFields(c.AMR),
		toMillis(c.AuthTime), toMillis(c.ExpiresAt), toMillis(c.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *authorizationCodesRepo) ConsumeAuthorizationCode(
	ctx context.Context,
	hash, clientID, redirectURI string,
) (domain.AuthorizationCode, error) {
	return scanAuthorizationCode(r.db.QueryRowContext(ctx, `
		DELETE FROM authorization_codes
		WHERE code_hash = ? AND client_id = ? AND redirect_uri = ?
		RETURNING `+authorizationCodeColumns,
		hash, clientID, redirectURI,
	))
}

func (r *authorizationCodesRepo) DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpired(ctx, r.db, `DELETE FROM authorization_codes WHERE expires_at <= ?`, now)
}
