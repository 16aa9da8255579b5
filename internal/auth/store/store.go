package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and so nobody accidentally opens a transaction inside a
// transaction.
type Store interface {
	Users() Users
	Clients() Clients
	AuthorizationCodes() AuthorizationCodes
	Tokens() Tokens
	Consents() Consents
	SigningKeys() SigningKeys
	PendingAuthorizations() PendingAuthorizations
	SsoStates() SsoStates
	Tenants() Tenants

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// Use it for multi-step operations that must be atomic (e.g., key rotation).
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail matches case-insensitively; used by local login and
	// provisioning.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserByProvider finds the user bound to an identity provider subject.
	GetUserByProvider(ctx context.Context, provider, subject string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// LinkProvider binds provider+subject to an existing user and marks
	// the email verified.
	LinkProvider(ctx context.Context, userID, provider, subject string) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// SetTOTPSecret stores a pending secret and clears any confirmation.
	SetTOTPSecret(ctx context.Context, userID, secret string) error

	// ConfirmTOTP marks the stored secret as confirmed.
	ConfirmTOTP(ctx context.Context, userID string) error

	// ListUsersByTenant returns a tenant's users, oldest first.
	ListUsersByTenant(ctx context.Context, tenantID string) ([]domain.User, error)

	// HasRole reports whether any user holds one of roles.
	HasRole(ctx context.Context, roles ...domain.Role) (bool, error)
}

type Clients interface {
	// GetClient fetches a client within an environment.
	GetClient(ctx context.Context, id, environment string) (domain.Client, error)

	// GetClientByID fetches a client in any environment.
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// ListClients returns all clients ordered by creation date (newest first).
	ListClients(ctx context.Context) ([]domain.Client, error)

	// CreateClient inserts a new client (secret_hash may be empty for public clients).
	CreateClient(ctx context.Context, c domain.Client) error

	// DeleteClient cascades to codes, tokens and consents (per schema).
	DeleteClient(ctx context.Context, id string) error
}

type AuthorizationCodes interface {
	// CreateAuthorizationCode stores a freshly minted authorization code.
	CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error

	// ConsumeAuthorizationCode deletes and returns the code matching hash,
	// client and redirect URI in one statement. Of any number of concurrent
	// callers exactly one gets the row; the rest get ErrNotFound. Expiry is
	// the caller's check, after the row is gone.
	ConsumeAuthorizationCode(ctx context.Context, hash, clientID, redirectURI string) (domain.AuthorizationCode, error)

	// DeleteExpiredAuthorizationCodes removes any codes that are no longer valid.
	DeleteExpiredAuthorizationCodes(ctx context.Context, now time.Time) (int64, error)
}

type Tokens interface {
	// CreateToken stores a new access/refresh pair.
	CreateToken(ctx context.Context, t domain.Token) error

	// GetTokenByAccessHash looks a pair up by its access fingerprint.
	GetTokenByAccessHash(ctx context.Context, hash string) (domain.Token, error)

	// GetTokenByRefreshHash looks a pair up by its refresh fingerprint.
	GetTokenByRefreshHash(ctx context.Context, hash string) (domain.Token, error)

	// RevokeByRefreshHash atomically revokes a live pair and returns it.
	// A pair already revoked yields ErrNotFound, so rotation has one winner.
	RevokeByRefreshHash(ctx context.Context, hash string, now time.Time) (domain.Token, error)

	// RevokeByHash revokes the pair holding hash as either half.
	RevokeByHash(ctx context.Context, hash string, now time.Time) error

	// RevokeUserClientTokens revokes every live pair of a user and client.
	RevokeUserClientTokens(ctx context.Context, userID, clientID string, now time.Time) error

	// DeleteExpiredTokens removes pairs whose refresh half expired.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

type Consents interface {
	// GetActiveConsent returns the non-revoked consent for the triple.
	GetActiveConsent(ctx context.Context, userID, clientID, scopeHash string) (domain.UserConsent, error)

	// UpsertConsent inserts the consent or, when an active one exists for
	// the same triple, refreshes its last_used_at. Returns the stored row.
	UpsertConsent(ctx context.Context, c domain.UserConsent) (domain.UserConsent, error)

	// TouchConsent refreshes last_used_at.
	TouchConsent(ctx context.Context, id string, now time.Time) error

	// ListActiveConsents returns the user's consents with client names.
	ListActiveConsents(ctx context.Context, userID string) ([]domain.UserConsent, error)

	// RevokeConsent revokes one of the user's consents.
	RevokeConsent(ctx context.Context, userID, id string, now time.Time) (domain.UserConsent, error)
}

type SigningKeys interface {
	// CreateSigningKey stores a new signing key with encrypted private key material.
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error

	// GetActiveSigningKey returns the key currently used for signing.
	GetActiveSigningKey(ctx context.Context) (domain.SigningKey, error)

	// ListSigningKeys returns all retained keys, newest first.
	ListSigningKeys(ctx context.Context) ([]domain.SigningKey, error)

	// RetireOtherSigningKeys deactivates every key except kid.
	RetireOtherSigningKeys(ctx context.Context, kid string, now time.Time) error

	// PurgeSigningKeys deletes all but the newest keep keys and returns the
	// purged kids.
	PurgeSigningKeys(ctx context.Context, keep int) ([]string, error)
}

type PendingAuthorizations interface {
	CreatePendingAuthorization(ctx context.Context, p domain.PendingAuthorization) error

	// ConsumePendingAuthorization deletes and returns the row in one statement.
	ConsumePendingAuthorization(ctx context.Context, keyHash string) (domain.PendingAuthorization, error)

	DeleteExpiredPendingAuthorizations(ctx context.Context, now time.Time) (int64, error)
}

type SsoStates interface {
	CreateSsoState(ctx context.Context, s domain.SsoAuthState) error

	// ConsumeSsoState deletes and returns the state in one statement. Expiry
	// is checked by the caller, after the row is gone.
	ConsumeSsoState(ctx context.Context, stateHash string) (domain.SsoAuthState, error)

	// DeleteExpiredSsoStates is the sweep job.
	DeleteExpiredSsoStates(ctx context.Context, now time.Time) (int64, error)
}

type Tenants interface {
	GetTenantByID(ctx context.Context, id string) (domain.Tenant, error)

	// GetTenantByExternalID matches the identity provider's directory id.
	GetTenantByExternalID(ctx context.Context, externalID string) (domain.Tenant, error)

	// GetTenantByVerifiedDomain matches a verified domain record.
	GetTenantByVerifiedDomain(ctx context.Context, domainName string) (domain.Tenant, error)

	CreateTenant(ctx context.Context, t domain.Tenant) error
	AddDomain(ctx context.Context, d domain.TenantDomain) error
	ListDomains(ctx context.Context, tenantID string) ([]domain.TenantDomain, error)

	// SetExternalID records the provider directory id the first time a
	// tenant is seen through federation.
	SetExternalID(ctx context.Context, tenantID, externalID string) error

	// MarkAdminConsentGranted stamps the grant time if not already set and
	// returns the tenant.
	MarkAdminConsentGranted(ctx context.Context, tenantID string, now time.Time) (domain.Tenant, error)
}
