package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Issuer string // Required: issuer claim for tokens and base of every discovery URL

	RSABits             int           // RSA key size for new signing keys (default: 2048, min: 2048)
	KeyRotationInterval time.Duration // Age at which the active key is rotated (default: 30 days)
	KeyRetain           int           // Keys kept for verification, active included (default: 3)
	KeyCheckInterval    time.Duration // How often the rotation job checks the active key (default: 24h)
	MasterKeyPath       string        // Path to the master key encrypting private keys at rest
	DatabaseFile        string        // Path to SQLite database file (default: ./auth.db)
	PepperFile          string        // Path to file containing pepper for password hashing (default: ./pepper)

	CodeTTL    time.Duration // Authorization code lifetime (default: 5m)
	AccessTTL  time.Duration // Access token lifetime (default: 15m)
	RefreshTTL time.Duration // Refresh token lifetime (default: 7 days)
	IDTokenTTL time.Duration // ID token lifetime (default: 15m)
	SessionTTL time.Duration // Browser session lifetime (default: 12h)
	PendingTTL time.Duration // Parked authorization request lifetime (default: 10m)

	PlatformClientID     string   // First-party client that never needs consent
	PlatformRedirectURIs []string // Redirect URIs registered for the platform client
	ClientEnvironment    string   // Environment tag clients are registered under (default: ENV)
	LoginURL             string   // Login page (default: /login)
	ConsentURL           string   // Consent page (default: /consent)
	CookieSecure         bool     // Mark the session cookie Secure (default: true)

	SSO SSOConfig

	TenantSelfRegistration bool     // Unknown organisational domains may register a tenant
	TenantPublicDomains    []string // Extra consumer mail domains that never map to a tenant

	BootstrapAdminEmail    string // Creates a global admin on first start when none exists
	BootstrapAdminPassword string // Generated and logged once when empty

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired record cleanup interval (default: 1h)
}

// SSOConfig configures the single external identity provider. Provider
// empty means federation is off.
type SSOConfig struct {
	Provider                string
	ClientID                string
	ClientSecret            string
	AuthURL                 string
	TokenURL                string
	JWKSURL                 string
	Issuer                  string
	UserInfoURL             string
	RedirectURL             string // absolute URL of /auth/sso/callback (default: Issuer + /auth/sso/callback)
	Scopes                  []string
	AdminConsentURL         string
	AdminConsentRedirectURL string        // where administrators land after tenant-wide consent (default: Issuer + /)
	StateTTL                time.Duration // default: 10m
	SweepInterval           time.Duration // default: 5m
}

// Enabled reports whether a provider is configured.
func (c SSOConfig) Enabled() bool { return c.Provider != "" }

func LoadConfig() Config {
	env := getEnvOrDefault("ENV", "dev")
	issuer := strings.TrimRight(getEnvOrDefault("AUTH_ISSUER", "http://localhost:8080"), "/")

	cfg := Config{
		Issuer: issuer,

		RSABits:             getEnvIntOrDefault("AUTH_RSA_BITS", 2048),
		KeyRotationInterval: getEnvDurationOrDefault("AUTH_KEY_ROTATION_INTERVAL", 30*24*time.Hour),
		KeyRetain:           getEnvIntOrDefault("AUTH_KEY_RETAIN", 3),
		KeyCheckInterval:    getEnvDurationOrDefault("AUTH_KEY_CHECK_INTERVAL", 24*time.Hour),
		MasterKeyPath:       os.Getenv("AUTH_MASTER_KEY_PATH"),
		DatabaseFile:        getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:          getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		CodeTTL:    getEnvDurationOrDefault("AUTH_CODE_TTL", 5*time.Minute),
		AccessTTL:  getEnvDurationOrDefault("AUTH_ACCESS_TTL", 15*time.Minute),
		RefreshTTL: getEnvDurationOrDefault("AUTH_REFRESH_TTL", 7*24*time.Hour),
		IDTokenTTL: getEnvDurationOrDefault("AUTH_ID_TOKEN_TTL", 15*time.Minute),
		SessionTTL: getEnvDurationOrDefault("AUTH_SESSION_TTL", 12*time.Hour),
		PendingTTL: getEnvDurationOrDefault("AUTH_PENDING_TTL", 10*time.Minute),

		PlatformClientID:     os.Getenv("AUTH_PLATFORM_CLIENT_ID"),
		PlatformRedirectURIs: getEnvListOrDefault("AUTH_PLATFORM_REDIRECT_URIS", []string{issuer + "/callback"}),
		ClientEnvironment:    getEnvOrDefault("AUTH_CLIENT_ENVIRONMENT", env),
		LoginURL:             getEnvOrDefault("AUTH_LOGIN_URL", "/login"),
		ConsentURL:           getEnvOrDefault("AUTH_CONSENT_URL", "/consent"),
		CookieSecure:         getEnvBoolOrDefault("AUTH_COOKIE_SECURE", true),

		SSO: SSOConfig{
			Provider:                os.Getenv("SSO_PROVIDER"),
			ClientID:                os.Getenv("SSO_CLIENT_ID"),
			ClientSecret:            os.Getenv("SSO_CLIENT_SECRET"),
			AuthURL:                 os.Getenv("SSO_AUTH_URL"),
			TokenURL:                os.Getenv("SSO_TOKEN_URL"),
			JWKSURL:                 os.Getenv("SSO_JWKS_URL"),
			Issuer:                  os.Getenv("SSO_ISSUER"),
			UserInfoURL:             os.Getenv("SSO_USERINFO_URL"),
			RedirectURL:             getEnvOrDefault("SSO_REDIRECT_URL", issuer+"/auth/sso/callback"),
			Scopes:                  getEnvListOrDefault("SSO_SCOPES", []string{"openid", "profile", "email"}),
			AdminConsentURL:         os.Getenv("SSO_ADMIN_CONSENT_URL"),
			AdminConsentRedirectURL: getEnvOrDefault("SSO_ADMIN_CONSENT_REDIRECT_URL", issuer+"/"),
			StateTTL:                getEnvDurationOrDefault("SSO_STATE_TTL", 10*time.Minute),
			SweepInterval:           getEnvDurationOrDefault("SSO_SWEEP_INTERVAL", 5*time.Minute),
		},

		TenantSelfRegistration: getEnvBoolOrDefault("TENANT_SELF_REGISTRATION", false),
		TenantPublicDomains:    getEnvListOrDefault("TENANT_PUBLIC_DOMAINS", nil),

		BootstrapAdminEmail:    os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),

		Env:                  env,
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	return cfg
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var errs []error

	if c.Issuer == "" {
		errs = append(errs, errors.New("AUTH_ISSUER is required"))
	}
	if c.RSABits < 2048 {
		errs = append(errs, fmt.Errorf("AUTH_RSA_BITS must be at least 2048, got %d", c.RSABits))
	}
	if c.KeyRetain < 2 {
		errs = append(errs, fmt.Errorf("AUTH_KEY_RETAIN must be at least 2, got %d", c.KeyRetain))
	}
	if c.KeyRotationInterval <= c.AccessTTL {
		errs = append(errs, errors.New("AUTH_KEY_ROTATION_INTERVAL must exceed AUTH_ACCESS_TTL"))
	}

	if c.SSO.Enabled() {
		missing := []string{}
		for name, v := range map[string]string{
			"SSO_CLIENT_ID": c.SSO.ClientID,
			"SSO_AUTH_URL":  c.SSO.AuthURL,
			"SSO_TOKEN_URL": c.SSO.TokenURL,
		} {
			if v == "" {
				missing = append(missing, name)
			}
		}
		if c.SSO.JWKSURL == "" && c.SSO.UserInfoURL == "" {
			missing = append(missing, "SSO_JWKS_URL or SSO_USERINFO_URL")
		}
		if len(missing) > 0 {
			errs = append(errs, fmt.Errorf("SSO_PROVIDER %q is missing %s", c.SSO.Provider, strings.Join(missing, ", ")))
		}
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

// getEnvListOrDefault reads a comma-separated list, dropping blank entries.
func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
