package jwtx

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

func TestJWKFromStoredPEM(t *testing.T) {
	key := testRSAKey(t)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	stored := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	jwk, err := NewRSAJWKFromPEM("k1", AlgorithmRS256, stored)
	require.NoError(t, err)
	require.Equal(t, NewRSAJWK("k1", KeyUseSignature, AlgorithmRS256, &key.PublicKey), jwk)

	pub, err := jwk.RSAPublicKey()
	require.NoError(t, err)
	require.True(t, key.PublicKey.Equal(pub))

	t.Run("rejects other blocks", func(t *testing.T) {
		priv := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
		_, err := NewRSAJWKFromPEM("k1", AlgorithmRS256, priv)
		require.Error(t, err)

		_, err = NewRSAJWKFromPEM("k1", AlgorithmRS256, []byte("garbage"))
		require.Error(t, err)
	})
}

func TestJWKRSAPublicKeyRejects(t *testing.T) {
	tests := []struct {
		name string
		jwk  JWK
	}{
		{"okp key", JWK{Kty: "OKP", Crv: "Ed25519", X: "abc"}},
		{"empty modulus", JWK{Kty: KeyTypeRSA, E: "AQAB"}},
		{"bad base64", JWK{Kty: KeyTypeRSA, N: "!!", E: "AQAB"}},
		{"oversized exponent", JWK{Kty: KeyTypeRSA, N: "AQAB", E: "AQIDBAU"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.jwk.RSAPublicKey()
			require.Error(t, err)
		})
	}
}

func TestJWKWireFormat(t *testing.T) {
	raw, err := json.Marshal(NewRSAJWK("kid-1", KeyUseSignature, AlgorithmRS256, &testRSAKey(t).PublicKey))
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(raw, &wire))
	require.Equal(t, "RSA", wire["kty"])
	require.Equal(t, "sig", wire["use"])
	require.Equal(t, "RS256", wire["alg"])
	require.Equal(t, "kid-1", wire["kid"])
	require.Equal(t, "AQAB", wire["e"])
	require.NotContains(t, wire, "crv")
}

func TestKeySet(t *testing.T) {
	k1, k2 := testRSAKey(t), testRSAKey(t)
	jwk := func(kid string, k *rsa.PrivateKey) JWK {
		return NewRSAJWK(kid, KeyUseSignature, AlgorithmRS256, &k.PublicKey)
	}

	ks := NewKeySet()
	require.False(t, ks.IsReady())
	require.Error(t, ks.AddJWK(jwk("", k1)))

	require.NoError(t, ks.AddJWK(jwk("k1", k1)))
	require.NoError(t, ks.AddJWK(jwk("k2", k2)))
	require.True(t, ks.IsReady())
	require.Equal(t, []string{"k2", "k1"}, ks.Kids())

	// A published snapshot is not affected by later writes.
	published := ks.PublicJWKS()

	require.NoError(t, ks.AddJWK(jwk("k1", k1)))
	require.Equal(t, []string{"k1", "k2"}, ks.Kids())

	ks.Retain([]string{"k2"})
	_, err := ks.Get("k1")
	require.ErrorIs(t, err, ErrNoKey)
	pub, err := ks.Get("k2")
	require.NoError(t, err)
	require.True(t, k2.PublicKey.Equal(pub))
	require.Len(t, published.Keys, 2)

	err = ks.ResetFromJWKS(JWKS{Keys: []JWK{
		jwk("p1", k1),
		{Kty: "EC", Crv: "P-256", Kid: "ec-1", X: "x", Y: "y"},
		{Kty: KeyTypeRSA, Use: "enc", Kid: "enc-1", N: "AQAB", E: "AQAB"},
		{Kty: KeyTypeRSA, N: "AQAB", E: "AQAB"},
	}})
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, ks.Kids())
}
