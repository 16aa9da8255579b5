package jwtx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// DefaultMissReloadInterval bounds how often an unknown kid may force a
// reload from storage. Without it, garbage kids would turn into database load.
const DefaultMissReloadInterval = 30 * time.Second

// KeyProvisioner creates and activates a signing key when none exists.
// The key rotation service implements it; the manager calls it lazily from
// SignToken so the very first token can always be signed.
type KeyProvisioner interface {
	EnsureActiveKey(ctx context.Context) error
}

// KeyManager owns the signing keys of this instance: exactly one active
// signer used for new tokens, and a KeySet holding the public half of every
// retained key (active or retired) for verification and JWKS publishing.
//
// Persistence lives behind KeyStore; the manager is only a cache of it and
// can be resynchronised at any time with Reload, which is how other
// instances pick up a rotation.
type KeyManager struct {
	KeySet *KeySet

	issuer string
	leeway time.Duration

	mu     sync.RWMutex
	active Signer

	store       KeyStore
	provisioner KeyProvisioner

	reloads            singleflight.Group
	missMu             sync.Mutex
	lastMissReload     time.Time
	missReloadInterval time.Duration
}

// KeyManagerOptions configures the KeyManager.
type KeyManagerOptions struct {
	// Issuer is stamped into every token and required on verification.
	Issuer string

	// Store is the durable key table. Nil means keys live only in memory.
	Store KeyStore

	// Leeway allows small clock skew when validating exp/nbf.
	Leeway time.Duration

	// MissReloadInterval overrides DefaultMissReloadInterval.
	MissReloadInterval time.Duration
}

// NewKeyManager builds a manager and, when a Store is configured, loads the
// retained keys from it. An empty store is fine: the first SignToken call
// provisions a key through the KeyProvisioner.
func NewKeyManager(ctx context.Context, opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}
	if opts.MissReloadInterval <= 0 {
		opts.MissReloadInterval = DefaultMissReloadInterval
	}

	km := &KeyManager{
		KeySet:             NewKeySet(),
		issuer:             opts.Issuer,
		leeway:             opts.Leeway,
		store:              opts.Store,
		missReloadInterval: opts.MissReloadInterval,
	}

	if km.store != nil {
		if err := km.Reload(ctx); err != nil {
			return nil, err
		}
	}

	return km, nil
}

// NewEphemeralKeyManager creates a manager with a single in-memory RS256
// key. Nothing is persisted, so every token dies with the process. Handy in
// tests and throwaway dev instances.
func NewEphemeralKeyManager(issuer string, rsaBits int) (*KeyManager, error) {
	km, err := NewKeyManager(context.Background(), KeyManagerOptions{Issuer: issuer})
	if err != nil {
		return nil, err
	}

	signer, _, err := GenerateSigner(rsaBits)
	if err != nil {
		return nil, err
	}
	if err := km.Activate(signer); err != nil {
		return nil, err
	}

	return km, nil
}

// GenerateSigner creates a fresh RS256 key with a random kid and returns the
// signer together with its PKCS1 PEM (for encryption at rest).
func GenerateSigner(rsaBits int) (Signer, []byte, error) {
	if rsaBits == 0 {
		rsaBits = cryptox.MinRSABits
	}

	kid, err := NewKeyID()
	if err != nil {
		return nil, nil, err
	}

	pemData, err := cryptox.GenerateRSAKey(rsaBits)
	if err != nil {
		return nil, nil, fmt.Errorf("jwtx: failed to generate RS256 key: %w", err)
	}

	signer, err := NewSignerRS256(kid, pemData)
	if err != nil {
		return nil, nil, err
	}

	return signer, pemData, nil
}

// NewKeyID creates a random key identifier: "mat-{128-bit token}".
func NewKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("jwtx: failed to generate key ID: %w", err)
	}
	return "mat-" + token, nil
}

// Issuer returns the issuer stamped into tokens.
func (km *KeyManager) Issuer() string {
	return km.issuer
}

// SetProvisioner wires the component that creates keys on demand.
func (km *KeyManager) SetProvisioner(p KeyProvisioner) {
	km.mu.Lock()
	defer km.mu.Unlock()
	km.provisioner = p
}

// Active returns the current signing key, or nil if none is loaded.
func (km *KeyManager) Active() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.active
}

// Activate makes signer the active key. Its public key is published before
// the switch, so a token signed the instant after always verifies.
func (km *KeyManager) Activate(signer Signer) error {
	if signer == nil {
		return errors.New("jwtx: signer cannot be nil")
	}
	if err := signer.Validate(); err != nil {
		return err
	}
	if err := km.KeySet.AddSigner(signer); err != nil {
		return fmt.Errorf("jwtx: failed to add signer to keyset: %w", err)
	}

	km.mu.Lock()
	km.active = signer
	km.mu.Unlock()
	return nil
}

// Retain keeps only the listed kids for verification. The active kid is
// always kept, whatever the caller passes.
func (km *KeyManager) Retain(kids []string) {
	if active := km.Active(); active != nil {
		kids = append(kids, active.KID())
	}
	km.KeySet.Retain(kids)
}

// IsReady returns true if the KeyManager can sign and verify.
func (km *KeyManager) IsReady() bool {
	return km.Active() != nil && km.KeySet.IsReady()
}

// PublicJWKS returns every retained public key.
func (km *KeyManager) PublicJWKS() JWKS {
	return km.KeySet.PublicJWKS()
}

// SignToken stamps iss/iat/nbf/exp/jti onto claims and signs them with the
// active key, provisioning one first if none exists yet.
func (km *KeyManager) SignToken(ctx context.Context, claims Claims, ttl time.Duration) (string, error) {
	signer := km.Active()
	if signer == nil {
		km.mu.RLock()
		p := km.provisioner
		km.mu.RUnlock()

		if p == nil {
			return "", ErrNoActiveKey
		}
		if err := p.EnsureActiveKey(ctx); err != nil {
			return "", fmt.Errorf("jwtx: provision signing key: %w", err)
		}
		if signer = km.Active(); signer == nil {
			return "", ErrNoActiveKey
		}
	}

	now := time.Now().UTC()
	claims.Issuer = km.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = NewJTI()
	}

	return signer.Sign(claims)
}

// Verifier returns a Verifier bound to this manager's keys. The issuer
// defaults to ours; unknown kids trigger a throttled reload from storage.
func (km *KeyManager) Verifier(opts VerifyOptions) Verifier {
	if opts.Issuer == "" {
		opts.Issuer = km.issuer
	}
	if opts.Leeway == 0 {
		opts.Leeway = km.leeway
	}
	v := newRS256Verifier(km.KeySet, opts)
	v.reload = km.reloadOnMiss
	return v
}

// Verify checks a token we issued for the given use and audience.
func (km *KeyManager) Verify(token, use string, audience ...string) (Claims, error) {
	return km.Verifier(VerifyOptions{Use: use, Audience: audience}).Verify(token)
}

// reloadOnMiss refreshes from storage when a kid is unknown, at most once
// per missReloadInterval, and reports whether kid is now known.
func (km *KeyManager) reloadOnMiss(kid string) bool {
	if km.store == nil {
		return false
	}

	km.missMu.Lock()
	if time.Since(km.lastMissReload) < km.missReloadInterval {
		km.missMu.Unlock()
		return false
	}
	km.lastMissReload = time.Now()
	km.missMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := km.Reload(ctx); err != nil {
		return false
	}

	_, err := km.KeySet.Get(kid)
	return err == nil
}
