package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/aussiebroadwan/maturity/pkg/idx"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

const (
	DefaultKeyRotationInterval = 30 * 24 * time.Hour
	DefaultKeyRetain           = 3
)

var _ jwtx.KeyProvisioner = (*KeyRotationService)(nil)

// KeyRotationService generates, rotates and prunes the persisted signing
// keys, and keeps the in-memory KeyManager in step with the table.
//
// A key moves Active -> Retired -> Purged. Rotation happens in one
// transaction: every other key is retired, the new key is inserted active,
// and everything beyond the newest Retain keys is purged. Only after the
// commit is the new signer activated in memory, and it is published to the
// KeySet before it is used, so there is never a moment without a key that
// both signs and verifies.
type KeyRotationService struct {
	Store      store.Store
	KeyManager *jwtx.KeyManager
	RSABits    int
	Interval   time.Duration // age at which the active key is rotated out
	Retain     int           // keys kept for verification, active included

	mu sync.Mutex
}

// RotateKeyResult is the outcome of a rotation.
type RotateKeyResult struct {
	Key    domain.SigningKey `json:"key"`
	Purged []string          `json:"purged,omitempty"`
}

// EnsureActiveKey makes sure a signing key exists, creating one when the
// table is empty. It is how the very first token gets signed.
func (s *KeyRotationService) EnsureActiveKey(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.KeyManager.Active() != nil {
		return nil
	}

	_, err := s.Store.SigningKeys().GetActiveSigningKey(ctx)
	switch {
	case err == nil:
		// Another instance got there first.
		return s.KeyManager.Reload(ctx)
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	_, err = s.rotate(ctx)
	return err
}

// RotateIfDue rotates when the active key is older than Interval and is a
// no-op otherwise. The scheduler calls it daily.
func (s *KeyRotationService) RotateIfDue(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, err := s.Store.SigningKeys().GetActiveSigningKey(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if err == nil && !active.IsDue(time.Now(), s.interval()) {
		// Keep this instance in step with rotations done elsewhere.
		if cur := s.KeyManager.Active(); cur == nil || cur.KID() != active.Kid {
			return false, s.KeyManager.Reload(ctx)
		}
		return false, nil
	}

	if _, err := s.rotate(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// RotateKey unconditionally replaces the active key.
func (s *KeyRotationService) RotateKey(ctx context.Context) (RotateKeyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotate(ctx)
}

func (s *KeyRotationService) rotate(ctx context.Context) (RotateKeyResult, error) {
	l := slogx.FromContext(ctx)

	bits := s.RSABits
	if bits < cryptox.MinRSABits {
		bits = cryptox.MinRSABits
	}

	signer, pemData, err := jwtx.GenerateSigner(bits)
	if err != nil {
		return RotateKeyResult{}, err
	}

	publicPEM, err := cryptox.PublicKeyPEM(pemData)
	if err != nil {
		return RotateKeyResult{}, err
	}

	encrypted, err := cryptox.EncryptPrivateKey(signer.KID(), pemData)
	if err != nil {
		return RotateKeyResult{}, fmt.Errorf("failed to encrypt private key: %w", err)
	}

	now := time.Now()
	key := domain.SigningKey{
		ID:                  idx.New().String(),
		Kid:                 signer.KID(),
		Algorithm:           jwtx.AlgorithmRS256,
		PublicKeyPEM:        publicPEM,
		PrivateKeyEncrypted: encrypted,
		Active:              true,
		CreatedAt:           now,
	}

	var (
		purged []string
		kept   []string
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.SigningKeys().RetireOtherSigningKeys(ctx, key.Kid, now); err != nil {
			return fmt.Errorf("failed to retire signing keys: %w", err)
		}
		if err := tx.SigningKeys().CreateSigningKey(ctx, key); err != nil {
			return fmt.Errorf("failed to create signing key: %w", err)
		}

		var err error
		purged, err = tx.SigningKeys().PurgeSigningKeys(ctx, s.retain())
		if err != nil {
			return fmt.Errorf("failed to purge signing keys: %w", err)
		}

		keys, err := tx.SigningKeys().ListSigningKeys(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			kept = append(kept, k.Kid)
		}
		return nil
	})
	if err != nil {
		l.Error("signing key rotation failed", "error", err)
		return RotateKeyResult{}, err
	}

	if err := s.KeyManager.Activate(signer); err != nil {
		return RotateKeyResult{}, err
	}
	s.KeyManager.Retain(kept)

	keyRotations.Inc()
	l.Info("signing key rotated", "kid", key.Kid, "purged", purged, "retained", len(kept))

	key.PrivateKeyEncrypted = nil
	return RotateKeyResult{Key: key, Purged: purged}, nil
}

// ListSigningKeys returns every retained key, newest first, without the
// encrypted private halves.
func (s *KeyRotationService) ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	keys, err := s.Store.SigningKeys().ListSigningKeys(ctx)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].PrivateKeyEncrypted = nil
	}
	return keys, nil
}

// Reload resynchronises the in-memory keys with the table.
func (s *KeyRotationService) Reload(ctx context.Context) error {
	return s.KeyManager.Reload(ctx)
}

func (s *KeyRotationService) interval() time.Duration {
	if s.Interval <= 0 {
		return DefaultKeyRotationInterval
	}
	return s.Interval
}

func (s *KeyRotationService) retain() int {
	if s.Retain < 2 {
		return DefaultKeyRetain
	}
	return s.Retain
}
