package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// sealVersion prefixes every sealed private key so the envelope can change
// without guessing at old rows.
const sealVersion byte = 1

const masterKeyEnv = "AUTH_MASTER_KEY"

var hkdfInfo = []byte("maturity signing-key encryption v1")

// ErrSealedKeyInvalid covers every reason a sealed private key cannot be
// opened: truncation, unknown envelope version, wrong kid or wrong master key.
var ErrSealedKeyInvalid = errors.New("cryptox: sealed private key is invalid")

var (
	masterMu   sync.Mutex
	masterKey  []byte
	masterFile string
)

// SetMasterKeyPath configures the file holding the master key material. A
// missing file is created with fresh random material on first use. Without
// a path the AUTH_MASTER_KEY variable is used, and failing that an
// ephemeral key that does not survive a restart.
func SetMasterKeyPath(path string) {
	masterMu.Lock()
	defer masterMu.Unlock()
	masterFile = path
	masterKey = nil
}

func readMasterMaterial() ([]byte, error) {
	if masterFile != "" {
		path := filepath.Clean(masterFile)
		data, err := os.ReadFile(path)
		switch {
		case err == nil && len(data) == 0:
			return nil, fmt.Errorf("cryptox: master key file %s is empty", path)
		case err == nil:
			return data, nil
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("cryptox: read master key: %w", err)
		}

		material := make([]byte, 32)
		if _, err := rand.Read(material); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, material, 0600); err != nil {
			return nil, fmt.Errorf("cryptox: write master key: %w", err)
		}
		slog.Info("generated master key", "path", path)
		return material, nil
	}

	if env := os.Getenv(masterKeyEnv); env != "" {
		return []byte(env), nil
	}

	slog.Warn("no master key configured, signing keys will not survive a restart")
	material := make([]byte, 32)
	if _, err := rand.Read(material); err != nil {
		return nil, err
	}
	return material, nil
}

func masterAEAD() (cipher.AEAD, error) {
	masterMu.Lock()
	defer masterMu.Unlock()

	if masterKey == nil {
		material, err := readMasterMaterial()
		if err != nil {
			return nil, err
		}
		key := make([]byte, 32)
		if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, hkdfInfo), key); err != nil {
			return nil, err
		}
		masterKey = key
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptPrivateKey seals a PEM private key with AES-256-GCM under the
// master key. The kid is authenticated alongside the ciphertext, so a
// sealed key copied onto another signing key row does not open.
//
// Layout: version(1) | nonce(12) | ciphertext+tag.
func EncryptPrivateKey(kid string, pemData []byte) ([]byte, error) {
	aead, err := masterAEAD()
	if err != nil {
		return nil, fmt.Errorf("cryptox: master key: %w", err)
	}

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(pemData)+aead.Overhead())
	out[0] = sealVersion
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, err
	}
	return aead.Seal(out, out[1:], pemData, []byte(kid)), nil
}

// DecryptPrivateKey opens a key sealed by EncryptPrivateKey for the same kid.
func DecryptPrivateKey(kid string, sealed []byte) ([]byte, error) {
	aead, err := masterAEAD()
	if err != nil {
		return nil, fmt.Errorf("cryptox: master key: %w", err)
	}

	n := aead.NonceSize()
	if len(sealed) < 1+n+aead.Overhead() {
		return nil, fmt.Errorf("%w: too short", ErrSealedKeyInvalid)
	}
	if sealed[0] != sealVersion {
		return nil, fmt.Errorf("%w: version %d", ErrSealedKeyInvalid, sealed[0])
	}

	plain, err := aead.Open(nil, sealed[1:1+n], sealed[1+n:], []byte(kid))
	if err != nil {
		return nil, ErrSealedKeyInvalid
	}
	return plain, nil
}
