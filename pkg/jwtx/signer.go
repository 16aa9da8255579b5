package jwtx

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// AlgorithmRS256 is the only signing algorithm this service issues tokens with.
const AlgorithmRS256 = "RS256"

// Signer signs tokens with one key and publishes its public half.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	PublicJWK() JWK
	Validate() error
}

type rs256Signer struct {
	kid string
	key *rsa.PrivateKey
	jwk JWK
}

// NewSignerRS256 loads a PKCS1 or PKCS8 PEM private key. Keys with a
// modulus below cryptox.MinRSABits are refused.
func NewSignerRS256(kid string, pemKey []byte) (Signer, error) {
	if kid == "" {
		return nil, errors.New("jwtx: signer requires a kid")
	}

	key, err := cryptox.ParseRSAPrivateKey(pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse RSA key: %w", err)
	}
	if bits := key.N.BitLen(); bits < cryptox.MinRSABits {
		return nil, fmt.Errorf("jwtx: RSA key %q is %d bits, need at least %d", kid, bits, cryptox.MinRSABits)
	}

	return &rs256Signer{
		kid: kid,
		key: key,
		jwk: NewRSAJWK(kid, KeyUseSignature, AlgorithmRS256, &key.PublicKey),
	}, nil
}

func (s *rs256Signer) Alg() string    { return AlgorithmRS256 }
func (s *rs256Signer) KID() string    { return s.kid }
func (s *rs256Signer) PublicJWK() JWK { return s.jwk }

// Sign serialises claims as a compact JWS with the kid in the header.
func (s *rs256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

func (s *rs256Signer) Validate() error {
	if s.key == nil {
		return errors.New("jwtx: nil RSA key")
	}
	return s.key.Validate()
}
