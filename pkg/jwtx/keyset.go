package jwtx

import (
	"crypto/rsa"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
)

var ErrNoKey = errors.New("jwtx: key not found")

type keyEntry struct {
	jwk JWK
	pub *rsa.PublicKey
}

// KeySet is the set of public verification keys, newest first. The
// authorization server publishes its own as the JWKS; the federation client
// keeps one per upstream provider.
//
// Readers load an immutable snapshot; writers copy it under mu and swap.
type KeySet struct {
	mu   sync.Mutex
	keys atomic.Pointer[[]keyEntry]
}

func NewKeySet() *KeySet {
	ks := &KeySet{}
	ks.keys.Store(&[]keyEntry{})
	return ks
}

func (k *KeySet) snapshot() []keyEntry { return *k.keys.Load() }

func (k *KeySet) update(fn func([]keyEntry) []keyEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	next := fn(slices.Clone(k.snapshot()))
	k.keys.Store(&next)
}

func (k *KeySet) AddSigner(s Signer) error {
	return k.AddJWK(s.PublicJWK())
}

// AddJWK puts j at the head of the set, replacing any key with the same kid.
func (k *KeySet) AddJWK(j JWK) error {
	if j.Kid == "" {
		return errors.New("jwtx: JWK without kid")
	}
	pub, err := j.RSAPublicKey()
	if err != nil {
		return err
	}

	k.update(func(keys []keyEntry) []keyEntry {
		keys = slices.DeleteFunc(keys, func(e keyEntry) bool { return e.jwk.Kid == j.Kid })
		return slices.Insert(keys, 0, keyEntry{jwk: j, pub: pub})
	})
	return nil
}

// Retain drops every key not named in kids.
func (k *KeySet) Retain(kids []string) {
	k.update(func(keys []keyEntry) []keyEntry {
		return slices.DeleteFunc(keys, func(e keyEntry) bool { return !slices.Contains(kids, e.jwk.Kid) })
	})
}

// ResetFromJWKS replaces the whole set. Keys that cannot verify RS256
// signatures are skipped, since provider sets often mix in EC or
// encryption keys.
func (k *KeySet) ResetFromJWKS(jwks JWKS) error {
	next := make([]keyEntry, 0, len(jwks.Keys))
	for _, j := range jwks.Keys {
		if !j.signing() {
			continue
		}
		pub, err := j.RSAPublicKey()
		if err != nil {
			return err
		}
		next = append(next, keyEntry{jwk: j, pub: pub})
	}

	k.update(func([]keyEntry) []keyEntry { return next })
	return nil
}

func (k *KeySet) Get(kid string) (*rsa.PublicKey, error) {
	for _, e := range k.snapshot() {
		if e.jwk.Kid == kid {
			return e.pub, nil
		}
	}
	return nil, ErrNoKey
}

func (k *KeySet) Kids() []string {
	keys := k.snapshot()
	kids := make([]string, len(keys))
	for i, e := range keys {
		kids[i] = e.jwk.Kid
	}
	return kids
}

// PublicJWKS is the set as served on the JWKS endpoint.
func (k *KeySet) PublicJWKS() JWKS {
	keys := k.snapshot()
	out := JWKS{Keys: make([]JWK, len(keys))}
	for i, e := range keys {
		out.Keys[i] = e.jwk
	}
	return out
}

func (k *KeySet) IsReady() bool { return len(k.snapshot()) > 0 }
