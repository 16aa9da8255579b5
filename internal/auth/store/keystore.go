package store

import (
	"context"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
)

// KeyStore exposes the signing key table to jwtx, which knows nothing of
// the domain types.
func KeyStore(s Store) jwtx.KeyStore {
	return jwtx.KeyStoreFunc(func(ctx context.Context) ([]jwtx.SigningKeyRecord, error) {
		keys, err := s.SigningKeys().ListSigningKeys(ctx)
		if err != nil {
			return nil, err
		}

		records := make([]jwtx.SigningKeyRecord, 0, len(keys))
		for _, k := range keys {
			records = append(records, signingKeyRecord(k))
		}
		return records, nil
	})
}

func signingKeyRecord(k domain.SigningKey) jwtx.SigningKeyRecord {
	return jwtx.SigningKeyRecord{
		ID:                  k.ID,
		Kid:                 k.Kid,
		Algorithm:           k.Algorithm,
		PublicKeyPEM:        k.PublicKeyPEM,
		PrivateKeyEncrypted: k.PrivateKeyEncrypted,
		Active:              k.Active,
		CreatedAt:           k.CreatedAt,
		RetiredAt:           k.RetiredAt,
	}
}
