package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/maturity/internal/auth/http"
	"github.com/aussiebroadwan/maturity/internal/auth/idp"
	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/maturity/internal/auth/tenancy"
	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// BuildVersion is stamped at build time with
// -ldflags "-X github.com/aussiebroadwan/maturity/internal/auth/app.BuildVersion=...".
var BuildVersion = "dev"

// totpIssuer is the account label authenticator apps show.
const totpIssuer = "Maturity"

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         store.Store
	keyManager *jwtx.KeyManager
	providers  map[string]service.IdentityProvider

	// Services
	tokenService        *service.TokenService
	userService         *service.UserService
	clientService       *service.ClientService
	consentService      *service.ConsentService
	authorizeService    *service.AuthorizeService
	loginService        *service.LoginService
	federationService   *service.FederationService
	provisioningService *service.ProvisioningService
	bootstrapService    *service.BootstrapService
	keyRotationService  *service.KeyRotationService

	scheduler *service.Scheduler

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// The pepper keys password hashes and token fingerprints; a broken file
	// must fail boot, not the first login
	cryptox.SetPepperPath(app.cfg.PepperFile)
	if err := cryptox.LoadPepper(); err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	// Initialize database first (signing keys live in it)
	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	ctx := slogx.WithContext(context.Background(), app.logger)
	keyManager, rotation, err := InitAuthKeys(ctx, app.cfg, app.db, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager
	app.keyRotationService = rotation

	if err := app.initProviders(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()

	if err := app.bootstrap(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initScheduler()
	app.initHTTP()

	return app, nil
}

// Run serves until ctx is cancelled or the listener fails, then shuts down.
func (app *Application) Run(ctx context.Context) error {
	app.scheduler.Start()

	app.logger.Info("auth service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"issuer", app.cfg.Issuer,
		"sso_provider", app.cfg.SSO.Provider,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.scheduler.Stop()
			_ = app.db.Close()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		app.logger.Info("shutdown requested", "cause", context.Cause(ctx))

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Jobs may still be writing; stop them before the database goes
	app.scheduler.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	version, err := db.SchemaVersion()
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	app.logger.Info("database ready", "file", app.cfg.DatabaseFile, "schema_version", version)
	return nil
}

// initProviders builds the configured external identity provider, if any.
func (app *Application) initProviders() error {
	app.providers = map[string]service.IdentityProvider{}
	if !app.cfg.SSO.Enabled() {
		app.logger.Info("federation disabled: no SSO_PROVIDER configured")
		return nil
	}

	sso := app.cfg.SSO
	p, err := idp.New(idp.Config{
		Name:            sso.Provider,
		ClientID:        sso.ClientID,
		ClientSecret:    sso.ClientSecret,
		AuthURL:         sso.AuthURL,
		TokenURL:        sso.TokenURL,
		JWKSURL:         sso.JWKSURL,
		UserInfoURL:     sso.UserInfoURL,
		Issuer:          sso.Issuer,
		Scopes:          sso.Scopes,
		AdminConsentURL: sso.AdminConsentURL,
	})
	if err != nil {
		return fmt.Errorf("failed to configure identity provider %q: %w", sso.Provider, err)
	}

	app.providers[p.Name()] = p
	app.logger.Info("identity provider configured", "provider", p.Name(), "callback", sso.RedirectURL)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	cfg := app.cfg

	app.clientService = &service.ClientService{
		Store:       app.db,
		Environment: cfg.ClientEnvironment,
	}
	app.consentService = &service.ConsentService{Store: app.db}
	app.userService = &service.UserService{Store: app.db}

	app.tokenService = &service.TokenService{
		Store:      app.db,
		Clients:    app.clientService,
		KeyManager: app.keyManager,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		IDTokenTTL: cfg.IDTokenTTL,
	}

	app.authorizeService = &service.AuthorizeService{
		Store:            app.db,
		Clients:          app.clientService,
		Consents:         app.consentService,
		CodeTTL:          cfg.CodeTTL,
		PendingTTL:       cfg.PendingTTL,
		PlatformClientID: cfg.PlatformClientID,
		LoginURL:         cfg.LoginURL,
		ConsentURL:       cfg.ConsentURL,
		AuthorizePath:    "/oauth/authorize",
	}

	app.loginService = &service.LoginService{
		Store:      app.db,
		KeyManager: app.keyManager,
		Issuer:     totpIssuer,
		SessionTTL: cfg.SessionTTL,
	}

	app.federationService = &service.FederationService{
		Store:     app.db,
		Providers: app.providers,
		StateTTL:  cfg.SSO.StateTTL,
	}

	app.provisioningService = &service.ProvisioningService{
		Store:                   app.db,
		Classifier:              tenancy.NewClassifier(cfg.TenantPublicDomains...),
		AllowTenantRegistration: cfg.TenantSelfRegistration,
		AdminConsentRedirectURL: cfg.SSO.AdminConsentRedirectURL,
	}
	// Leave the interface nil rather than holding a nil *idp.Provider
	if p, ok := app.providers[cfg.SSO.Provider].(*idp.Provider); ok {
		app.provisioningService.AdminConsent = p
	}

	app.bootstrapService = &service.BootstrapService{Store: app.db}
}

// bootstrap creates the first global administrator and the platform client.
func (app *Application) bootstrap(ctx context.Context) error {
	var platform domain.Client
	if app.cfg.PlatformClientID != "" {
		platform = domain.Client{
			ID:           app.cfg.PlatformClientID,
			Name:         "Platform",
			Environment:  app.cfg.ClientEnvironment,
			RedirectURIs: app.cfg.PlatformRedirectURIs,
		}
	}

	res, err := app.bootstrapService.Bootstrap(ctx, domain.BootstrapData{
		AdminEmail:     app.cfg.BootstrapAdminEmail,
		AdminPassword:  app.cfg.BootstrapAdminPassword,
		PlatformClient: platform,
	})
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	if res.GeneratedPassword != "" {
		// Printed once, never stored in plain text
		app.logger.Warn("generated bootstrap admin password, change it after first login",
			"email", app.cfg.BootstrapAdminEmail,
			"password", res.GeneratedPassword,
		)
	}
	return nil
}

// initScheduler registers the background jobs.
func (app *Application) initScheduler() {
	jobs := []service.Job{
		service.KeyRotationJob(app.keyRotationService, app.cfg.KeyCheckInterval),
		service.CleanupJob(app.db, app.cfg.HousekeepingInterval),
		{
			// Picks up rotations performed by other instances
			Name:     "signing_key_reload",
			Interval: time.Minute,
			Run:      app.keyRotationService.Reload,
		},
	}
	if app.cfg.SSO.Enabled() {
		jobs = append(jobs, service.SsoStateSweepJob(app.federationService, app.cfg.SSO.SweepInterval))
	}

	app.scheduler = service.NewScheduler(app.logger, jobs...)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.keyManager, BuildVersion, app.db, app.logger)

	router.CookieSecure = app.cfg.CookieSecure
	router.SSOCallbackURL = app.cfg.SSO.RedirectURL
	router.LoginURL = app.cfg.LoginURL

	// Wire services to router
	router.TokenService = app.tokenService
	router.UserService = app.userService
	router.ClientService = app.clientService
	router.ConsentService = app.consentService
	router.AuthorizeService = app.authorizeService
	router.LoginService = app.loginService
	router.FederationService = app.federationService
	router.ProvisioningService = app.provisioningService
	router.KeyRotationService = app.keyRotationService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
