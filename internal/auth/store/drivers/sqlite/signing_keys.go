package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
)

const signingKeyColumns = `id, kid, algorithm, public_key_pem, private_key_encrypted, active, created_at, retired_at`

type signingKeysRepo struct {
	db dbtx
}

func scanSigningKey(row scanner) (domain.SigningKey, error) {
	var (
		k         domain.SigningKey
		createdAt int64
		retiredAt sql.NullInt64
	)
	err := row.Scan(&k.ID, &k.Kid, &k.Algorithm, &k.PublicKeyPEM, &k.PrivateKeyEncrypted,
		&k.Active, &createdAt, &retiredAt)
	if err != nil {
		return domain.SigningKey{}, mapNotFound(err)
	}

	k.CreatedAt = fromMillis(createdAt)
	k.RetiredAt = mapNullTimePtr(retiredAt)
	return k, nil
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO signing_keys (`+signingKeyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.Kid, key.Algorithm, key.PublicKeyPEM, key.PrivateKeyEncrypted,
		key.Active, toMillis(key.CreatedAt), mapOptionalTime(key.RetiredAt),
	)
	return mapConstraint(err)
}

func (r *signingKeysRepo) GetActiveSigningKey(ctx context.Context) (domain.SigningKey, error) {
	return scanSigningKey(r.db.QueryRowContext(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys WHERE active = 1`))
}

func (r *signingKeysRepo) ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.SigningKey
	for rows.Next() {
		k, err := scanSigningKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RetireOtherSigningKeys must run before the new key is inserted as active,
// or the one-active index rejects the insert.
func (r *signingKeysRepo) RetireOtherSigningKeys(ctx context.Context, kid string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE signing_keys SET active = 0, retired_at = ? WHERE active = 1 AND kid <> ?`,
		toMillis(now), kid)
	return err
}

// PurgeSigningKeys never deletes the active key, even when it falls outside
// the newest keep.
func (r *signingKeysRepo) PurgeSigningKeys(ctx context.Context, keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}
	rows, err := r.db.QueryContext(ctx, `
		DELETE FROM signing_keys
		WHERE active = 0
		  AND id NOT IN (SELECT id FROM signing_keys ORDER BY created_at DESC, id DESC LIMIT ?)
		RETURNING kid`, keep)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purged []string
	for rows.Next() {
		var kid string
		if err := rows.Scan(&kid); err != nil {
			return nil, err
		}
		purged = append(purged, kid)
	}
	return purged, rows.Err()
}
