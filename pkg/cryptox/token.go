package cryptox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Random token sizes in bytes. Encoded they are 22 and 43 characters.
const (
	TokenSize128 = 16 // federation states, key ids
	TokenSize256 = 32 // codes, refresh tokens, pending keys, client secrets
)

// PKCE challenge methods (RFC 7636).
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// GenerateToken returns size random bytes as unpadded base64url.
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("cryptox: token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken returns the value we persist in place of a bearer secret
// (authorization codes, access and refresh tokens, pending request keys,
// federation states). It is an HMAC-SHA256 keyed with the server pepper, so a
// leaked table cannot be matched against guessed tokens offline, while lookups
// stay a single indexed equality on the fingerprint.
//
// The fingerprint is returned as a base64url-encoded string (43 chars).
func FingerprintToken(token string) string {
	mac := hmac.New(sha256.New, []byte(GetPepper()))
	mac.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// S256Challenge derives the PKCE S256 challenge for a verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE reports whether verifier reduces to challenge under method.
// An empty method is treated as "plain" per RFC 7636 section 4.3.
func VerifyPKCE(method, challenge, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}

	var computed string
	switch method {
	case PKCEMethodS256:
		computed = S256Challenge(verifier)
	case PKCEMethodPlain, "":
		computed = verifier
	default:
		return false
	}

	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
