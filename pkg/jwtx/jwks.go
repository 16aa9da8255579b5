package jwtx

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
)

const (
	KeyUseSignature = "sig"
	KeyTypeRSA      = "RSA"
)

// JWK is a JSON Web Key (RFC 7517). Only RSA keys are published; the EC/OKP
// members exist so provider key sets decode without loss.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	Kid string `json:"kid,omitempty"`

	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

var b64 = base64.RawURLEncoding

// NewRSAJWK encodes pub as a JWK.
func NewRSAJWK(kid, use, alg string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: KeyTypeRSA,
		Use: use,
		Alg: alg,
		Kid: kid,
		N:   b64.EncodeToString(pub.N.Bytes()),
		E:   b64.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// NewRSAJWKFromPEM decodes a PKIX "PUBLIC KEY" block, the form in which
// signing keys keep their public half in storage.
func NewRSAJWKFromPEM(kid, alg string, publicPEM []byte) (JWK, error) {
	block, _ := pem.Decode(publicPEM)
	if block == nil || block.Type != "PUBLIC KEY" {
		return JWK{}, fmt.Errorf("jwtx: key %q: not a PUBLIC KEY PEM block", kid)
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return JWK{}, fmt.Errorf("jwtx: key %q: %w", kid, err)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return JWK{}, fmt.Errorf("jwtx: key %q: %T is not RSA", kid, parsed)
	}
	return NewRSAJWK(kid, KeyUseSignature, alg, pub), nil
}

// signing reports whether j can verify RS256 signatures.
func (j JWK) signing() bool {
	return j.Kid != "" && j.Kty == KeyTypeRSA && (j.Use == "" || j.Use == KeyUseSignature)
}

// RSAPublicKey decodes the modulus and exponent.
func (j JWK) RSAPublicKey() (*rsa.PublicKey, error) {
	if j.Kty != KeyTypeRSA {
		return nil, fmt.Errorf("jwtx: unsupported kty %q", j.Kty)
	}

	n, err := b64.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("jwtx: modulus: %w", err)
	}
	e, err := b64.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("jwtx: exponent: %w", err)
	}
	if len(n) == 0 || len(e) == 0 || len(e) > 4 {
		return nil, errors.New("jwtx: bad RSA modulus or exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(new(big.Int).SetBytes(e).Int64()),
	}, nil
}
