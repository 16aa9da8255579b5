package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// MinRSABits is the smallest RS256 modulus generated or accepted.
const MinRSABits = 2048

var ErrNotRSAKey = errors.New("cryptox: not an RSA private key")

// GenerateRSAKey returns a new PKCS#1 "RSA PRIVATE KEY" PEM block.
func GenerateRSAKey(bits int) ([]byte, error) {
	if bits < MinRSABits {
		return nil, fmt.Errorf("cryptox: RSA key size %d is below the minimum of %d bits", bits, MinRSABits)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("cryptox: generate RSA key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), nil
}

var privateKeyParsers = map[string]func([]byte) (any, error){
	"RSA PRIVATE KEY": func(der []byte) (any, error) { return x509.ParsePKCS1PrivateKey(der) },
	"PRIVATE KEY":     x509.ParsePKCS8PrivateKey,
}

// ParseRSAPrivateKey accepts PKCS#1 and PKCS#8 PEM, so keys made with
// openssl import unchanged.
func ParseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("cryptox: no PEM block found")
	}
	parse, ok := privateKeyParsers[block.Type]
	if !ok {
		return nil, fmt.Errorf("cryptox: unsupported PEM type %q", block.Type)
	}

	parsed, err := parse(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptox: parse %s: %w", block.Type, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrNotRSAKey
	}
	return key, nil
}

// PublicKeyPEM derives the PKIX "PUBLIC KEY" block stored next to a sealed
// private key, so verification keys load without the master key.
func PublicKeyPEM(privatePEM []byte) ([]byte, error) {
	key, err := ParseRSAPrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		return nil, fmt.Errorf("cryptox: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
