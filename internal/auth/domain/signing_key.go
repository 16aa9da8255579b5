package domain

import "time"

// SigningKey is a stored RS256 key pair. Exactly one row is active; retired
// rows keep verifying tokens until they are purged.
type SigningKey struct {
	ID                  string     // ULID
	Kid                 string     // Key identifier in JWKS (e.g., "mat-abc123")
	Algorithm           string     // RS256
	PublicKeyPEM        []byte     // PKIX PEM
	PrivateKeyEncrypted []byte     // AES-256-GCM encrypted private key PEM
	Active              bool       // signs new tokens
	CreatedAt           time.Time  // When the key was created
	RetiredAt           *time.Time // When key was retired from active signing (nil = never)
}

// IsDue reports whether the key is old enough to be rotated out.
func (k SigningKey) IsDue(now time.Time, interval time.Duration) bool {
	return now.Sub(k.CreatedAt) >= interval
}
