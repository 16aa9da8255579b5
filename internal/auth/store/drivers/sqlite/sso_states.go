package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
)

type ssoStatesRepo struct {
	db dbtx
}

func (r *ssoStatesRepo) CreateSsoState(ctx context.Context, s domain.SsoAuthState) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sso_auth_states (state_hash, provider, code_verifier, redirect_uri, post_login_target, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.StateHash, s.Provider, s.CodeVerifier, s.RedirectURI, s.PostLoginTarget,
		toMillis(s.ExpiresAt), toMillis(s.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *ssoStatesRepo) ConsumeSsoState(ctx context.Context, stateHash string) (domain.SsoAuthState, error) {
	var (
		s                    domain.SsoAuthState
		expiresAt, createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM sso_auth_states WHERE state_hash = ?
		RETURNING state_hash, provider, code_verifier, redirect_uri, post_login_target, expires_at, created_at`,
		stateHash,
	).Scan(&s.StateHash, &s.Provider, &s.CodeVerifier, &s.RedirectURI, &s.PostLoginTarget, &expiresAt, &createdAt)
	if err != nil {
		return domain.SsoAuthState{}, mapNotFound(err)
	}

	s.ExpiresAt = fromMillis(expiresAt)
	s.CreatedAt = fromMillis(createdAt)
	return s, nil
}

func (r *ssoStatesRepo) DeleteExpiredSsoStates(ctx context.Context, now time.Time) (int64, error) {
	return deleteExpired(ctx, r.db, `DELETE FROM sso_auth_states WHERE expires_at <= ?`, now)
}
