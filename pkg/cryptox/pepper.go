package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Configuration for Argon2id hashing.
const (
	memory      = 19 * 1024 // Memory usage in KiB (19 MiB)
	iterations  = 2         // Iteration count
	parallelism = 1         // Number of threads
	keyLength   = 32        // Length of the generated hash
	saltLength  = 16        // Length of the salt
)

var (
	// The pepper keys both argon2 hashes and token fingerprints. It is loaded
	// from a file, or generated into it on first start.
	pepperMu   sync.Mutex
	pepper     string
	pepperFile string
)

// SetPepperPath configures where the pepper lives. Changing the path drops
// any pepper already loaded so the next use reads the new file.
func SetPepperPath(file string) {
	pepperMu.Lock()
	defer pepperMu.Unlock()
	pepperFile = file
	pepper = ""
}

// LoadPepper loads (or creates) the pepper eagerly. The application calls it
// at startup so a broken pepper file fails boot rather than the first login.
func LoadPepper() error {
	pepperMu.Lock()
	defer pepperMu.Unlock()

	p, err := loadOrGeneratePepper()
	if err != nil {
		return err
	}
	pepper = p
	return nil
}

// GetPepper returns the loaded pepper, loading it on first use. Losing the
// pepper invalidates every stored hash, so failing to load it is fatal.
func GetPepper() string {
	pepperMu.Lock()
	defer pepperMu.Unlock()

	if pepper != "" {
		return pepper
	}

	p, err := loadOrGeneratePepper()
	if err != nil {
		slog.Error("failed to load or generate pepper", slog.Any("err", err))
		os.Exit(1)
	}
	pepper = p

	return pepper
}

// loadOrGeneratePepper loads the pepper from a file or generates one if not found.
func loadOrGeneratePepper() (string, error) {
	if pepperFile == "" {
		return "", errors.New("cryptox: pepper path not configured")
	}

	path := filepath.Clean(pepperFile)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if len(data) == 0 {
			return "", fmt.Errorf("cryptox: pepper file %s is empty", path)
		}
		return string(data), nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	pepperBytes := make([]byte, keyLength)
	if _, err := rand.Read(pepperBytes); err != nil {
		return "", err
	}
	generated := base64.RawURLEncoding.EncodeToString(pepperBytes)

	if err := os.WriteFile(path, []byte(generated), 0600); err != nil {
		return "", err
	}

	return generated, nil
}
