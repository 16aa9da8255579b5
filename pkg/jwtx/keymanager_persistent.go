package jwtx

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/maturity/pkg/cryptox"
)

// SigningKeyRecord represents a signing key stored in the database.
// It lives here rather than in the domain package so jwtx stays free of
// service imports.
type SigningKeyRecord struct {
	ID                  string
	Kid                 string
	Algorithm           string
	PublicKeyPEM        []byte
	PrivateKeyEncrypted []byte
	Active              bool
	CreatedAt           time.Time
	RetiredAt           *time.Time
}

// KeyStore is the minimal read side jwtx needs from the key table.
type KeyStore interface {
	// ListSigningKeys returns every retained key (active and retired),
	// newest first. Purged keys are gone from the table.
	ListSigningKeys(ctx context.Context) ([]SigningKeyRecord, error)
}

// KeyStoreFunc adapts a function to KeyStore.
type KeyStoreFunc func(ctx context.Context) ([]SigningKeyRecord, error)

func (f KeyStoreFunc) ListSigningKeys(ctx context.Context) ([]SigningKeyRecord, error) {
	return f(ctx)
}

// Reload resynchronises the manager with storage: the KeySet becomes
// exactly the retained keys and the active signer becomes the stored active
// key. Concurrent callers share one load.
//
// The swap is ordered so verification never sees an empty set: the new
// KeySet is fully built before it replaces the old one, and the active
// signer is switched only after its key is published.
func (km *KeyManager) Reload(ctx context.Context) error {
	if km.store == nil {
		return nil
	}

	_, err, _ := km.reloads.Do("reload", func() (any, error) {
		return nil, km.reload(ctx)
	})
	return err
}

func (km *KeyManager) reload(ctx context.Context) error {
	records, err := km.store.ListSigningKeys(ctx)
	if err != nil {
		return fmt.Errorf("jwtx: failed to load keys from database: %w", err)
	}

	jwks := JWKS{Keys: make([]JWK, 0, len(records))}
	var active Signer

	for _, rec := range records {
		jwk, err := NewRSAJWKFromPEM(rec.Kid, rec.Algorithm, rec.PublicKeyPEM)
		if err != nil {
			return fmt.Errorf("jwtx: failed to load public key %s: %w", rec.Kid, err)
		}
		jwks.Keys = append(jwks.Keys, jwk)

		if !rec.Active || active != nil {
			continue
		}

		pemData, err := cryptox.DecryptPrivateKey(rec.Kid, rec.PrivateKeyEncrypted)
		if err != nil {
			return fmt.Errorf("jwtx: failed to decrypt key %s: %w", rec.Kid, err)
		}
		signer, err := NewSignerRS256(rec.Kid, pemData)
		if err != nil {
			return fmt.Errorf("jwtx: failed to create signer for key %s: %w", rec.Kid, err)
		}
		active = signer
	}

	if err := km.KeySet.ResetFromJWKS(jwks); err != nil {
		return fmt.Errorf("jwtx: failed to publish keys: %w", err)
	}

	km.mu.Lock()
	km.active = active
	km.mu.Unlock()

	return nil
}
