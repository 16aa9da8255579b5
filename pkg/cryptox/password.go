package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrPasswordMismatch is returned by VerifyPassword when the hash is well
	// formed but does not match the presented secret.
	ErrPasswordMismatch = errors.New("cryptox: password does not match")

	// ErrMalformedHash means the stored value is not an argon2id PHC string.
	ErrMalformedHash = errors.New("cryptox: malformed argon2id hash")
)

// dummyHash is verified against when the account or client being checked
// does not exist, so both paths spend the same argon2 time.
const dummyHash = "$argon2id$v=19$m=19456,t=2,p=1$c2FsdHNhbHRzYWx0c2FsdA$AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8"

// argonParams are the cost parameters recorded in a PHC string.
type argonParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
}

var currentParams = argonParams{Memory: memory, Iterations: iterations, Parallelism: parallelism}

// phcHash is a decoded "$argon2id$v=19$m=..,t=..,p=..$salt$key" string.
type phcHash struct {
	params argonParams
	salt   []byte
	key    []byte
}

func (h phcHash) String() string {
	enc := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Iterations, h.params.Parallelism,
		enc.EncodeToString(h.salt), enc.EncodeToString(h.key),
	)
}

func parsePHC(encoded string) (phcHash, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != "argon2id" {
		return phcHash{}, ErrMalformedHash
	}
	if fields[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return phcHash{}, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, fields[2])
	}

	var h phcHash
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d",
		&h.params.Memory, &h.params.Iterations, &h.params.Parallelism); err != nil {
		return phcHash{}, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return phcHash{}, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil {
		return phcHash{}, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}
	if len(h.key) == 0 {
		return phcHash{}, ErrMalformedHash
	}
	return h, nil
}

func derive(secret string, salt []byte, p argonParams, n int) []byte {
	return argon2.IDKey([]byte(secret+GetPepper()), salt, p.Iterations, p.Memory, p.Parallelism, uint32(n)) // #nosec G115 - n is a stored key length
}

// HashPassword returns a peppered argon2id hash of secret in PHC form. It
// hashes user passwords and confidential client secrets alike.
func HashPassword(secret string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return phcHash{
		params: currentParams,
		salt:   salt,
		key:    derive(secret, salt, currentParams, keyLength),
	}.String(), nil
}

// VerifyPassword checks secret against an encoded hash using the cost
// parameters stored in the hash, so older hashes keep verifying after the
// defaults change.
func VerifyPassword(secret, encoded string) error {
	h, err := parsePHC(encoded)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(derive(secret, h.salt, h.params, len(h.key)), h.key) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// NeedsRehash reports whether encoded was produced with cost parameters
// other than the current ones. Malformed hashes always need a rehash.
func NeedsRehash(encoded string) bool {
	h, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	return h.params != currentParams || len(h.key) != keyLength
}

// BurnVerification spends a full verification on a throwaway hash. Call it
// on lookup misses so timing does not reveal whether the account exists.
func BurnVerification(secret string) {
	_ = VerifyPassword(secret, dummyHash)
}

// passwordAlphabet omits characters that are easy to misread when the
// bootstrap password is copied out of a log line.
const passwordAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GeneratePassword returns a random password of 16 unambiguous alphanumeric
// characters, used for the bootstrap administrator when none is configured.
func GeneratePassword() (string, error) {
	const length = 16
	// Largest multiple of the alphabet size that fits in a byte; anything
	// above it is redrawn to keep the distribution uniform.
	limit := byte(256 - 256%len(passwordAlphabet))

	out := make([]byte, 0, length)
	buf := make([]byte, length*2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("cryptox: generate password: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, passwordAlphabet[int(b)%len(passwordAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
