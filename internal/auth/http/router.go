package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/aussiebroadwan/maturity/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeyManager
	access       jwtx.Verifier
	session      jwtx.Verifier
	issuer       string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	// CookieSecure marks the session cookie Secure. Only local development
	// over plain http turns it off.
	CookieSecure bool

	// SSOCallbackURL is where identity providers send the browser back to.
	SSOCallbackURL string

	// LoginURL is the login page federation failures are reported to.
	LoginURL string

	TokenService        *service.TokenService
	UserService         *service.UserService
	ClientService       *service.ClientService
	ConsentService      *service.ConsentService
	AuthorizeService    *service.AuthorizeService
	LoginService        *service.LoginService
	FederationService   *service.FederationService
	ProvisioningService *service.ProvisioningService
	KeyRotationService  *service.KeyRotationService
}

func NewRouter(
	keys *jwtx.KeyManager,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		issuer:       keys.Issuer(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		CookieSecure: true,
		LoginURL:     "/login",
	}

	r.access = keys.Verifier(jwtx.VerifyOptions{Use: jwtx.TokenUseAccess})
	r.session = keys.Verifier(jwtx.VerifyOptions{
		Use:      jwtx.TokenUseSession,
		Audience: []string{jwtx.AudienceSession},
	})

	// Metrics sits innermost so it sees the pattern the mux matched
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger, "/livez", "/readyz", "/metrics"),
		httpx.Metrics,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerDiscovery()
	r.registerOAuth2()
	r.registerConsent()
	r.registerLogin()
	r.registerMFA()
	r.registerFederation()
	r.registerTenants()
	r.registerClients()
	r.registerKeyRotation()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Maturity Identity Service API
//	@version		0.1.0
//	@description	OAuth 2.1 / OpenID Connect provider for the Maturity platform: authorization code flow with PKCE,
//	@description	consent, refresh rotation, enterprise federation and tenant provisioning.
//	@description
//	@description				All tokens are signed using RS256 (RSA-SHA256) and can be verified using the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/maturity
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
//
//	@securityDefinitions.apikey	SessionCookie
//	@in							cookie
//	@name						maturity_session
//	@description				Browser session issued by /auth/login or /auth/sso/callback.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) cookies() sessionCookie {
	return sessionCookie{Name: authsdk.SessionCookieName, Secure: r.CookieSecure}
}

// withSession resolves the session cookie. Optional sessions leave the
// request anonymous when the cookie is missing or invalid.
func (r *Router) withSession(required bool) httpx.Middleware {
	return httpx.SessionMiddleware(authsdk.SessionCookieName, r.session, required)
}

// admin guards the administrative API: an access token carrying the admin
// scope, issued to a user whose role passes allow.
func (r *Router) admin(h http.HandlerFunc, allow capabilityCheck) http.Handler {
	return httpx.Chain(h,
		httpx.AuthnMiddleware(r.access),
		httpx.RequireAnyScope(service.ScopeAdmin),
		requireCapability(r.UserService, allow),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)
}

func (r *Router) registerDiscovery() {
	// Public metadata - high limit, relying parties poll it
	r.Mux.Handle("GET /.well-known/openid-configuration",
		httpx.Chain(DiscoveryHandler(r.issuer),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerOAuth2() {
	authorizeHandler := &AuthorizeHandler{AuthorizeService: r.AuthorizeService}

	// GET /oauth/authorize - lenient rate limit, the session cookie is optional
	r.Mux.Handle("GET /oauth/authorize",
		httpx.Chain(authorizeHandler,
			r.withSession(false),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /oauth/token - strict rate limit by IP (covers all grant types)
	tokenHandler := &TokenHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /oauth/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// GET /oauth/userinfo - the handler checks the token against storage itself
	userInfoHandler := &UserInfoHandler{TokenService: r.TokenService}
	r.Mux.Handle("GET /oauth/userinfo",
		httpx.Chain(userInfoHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /oauth/introspect - client-authenticated, moderate limit per client
	introspectHandler := &IntrospectHandler{
		TokenService:  r.TokenService,
		ClientService: r.ClientService,
		Issuer:        r.issuer,
	}
	r.Mux.Handle("POST /oauth/introspect",
		httpx.Chain(introspectHandler,
			httpx.RateLimitByClient(httpx.ModerateLimit),
		),
	)

	// POST /oauth/revoke - moderate rate limit
	revokeHandler := &RevokeHandler{
		TokenService:  r.TokenService,
		ClientService: r.ClientService,
	}
	r.Mux.Handle("POST /oauth/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// GET /oauth/logout - RP-initiated logout
	logoutHandler := &EndSessionHandler{
		ClientService: r.ClientService,
		KeyManager:    r.keys,
		Cookies:       r.cookies(),
	}
	r.Mux.Handle("GET /oauth/logout",
		httpx.Chain(logoutHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerConsent() {
	h := &ConsentHandler{
		AuthorizeService: r.AuthorizeService,
		ConsentService:   r.ConsentService,
	}

	r.Mux.Handle("GET /api/oauth/consent",
		httpx.Chain(http.HandlerFunc(h.HandlePrompt),
			r.withSession(true),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /api/oauth/consent",
		httpx.Chain(http.HandlerFunc(h.HandleDecision),
			r.withSession(true),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /api/oauth/consents",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			r.withSession(true),
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("DELETE /api/oauth/consents/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			r.withSession(true),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerLogin() {
	h := &LoginHandler{
		LoginService:     r.LoginService,
		AuthorizeService: r.AuthorizeService,
		Cookies:          r.cookies(),
	}

	// POST /auth/login - strict rate limit per address and per account (password guessing)
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.StrictLimit),
			httpx.RateLimitByAccount(httpx.StrictLimit, "email"),
		),
	)

	r.Mux.Handle("POST /auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{LoginService: r.LoginService}

	// POST /auth/mfa/totp/enroll - moderate rate limit by user
	r.Mux.Handle("POST /auth/mfa/totp/enroll",
		httpx.Chain(http.HandlerFunc(h.HandleEnroll),
			r.withSession(true),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /auth/mfa/totp/confirm - strict rate limit by user (prevent brute force of TOTP codes)
	r.Mux.Handle("POST /auth/mfa/totp/confirm",
		httpx.Chain(http.HandlerFunc(h.HandleConfirm),
			r.withSession(true),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerFederation() {
	h := &FederationHandler{
		FederationService:   r.FederationService,
		ProvisioningService: r.ProvisioningService,
		AuthorizeService:    r.AuthorizeService,
		LoginService:        r.LoginService,
		Cookies:             r.cookies(),
		CallbackURL:         r.SSOCallbackURL,
		LoginURL:            r.LoginURL,
	}

	// The literal callback path wins over the {provider} wildcard
	r.Mux.Handle("GET /auth/sso/callback",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /auth/sso/{provider}",
		httpx.Chain(http.HandlerFunc(h.HandleBegin),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerTenants() {
	h := &TenantsHandler{ProvisioningService: r.ProvisioningService}

	manageTenant := func(c domain.Capabilities, req *http.Request) bool {
		return c.CanManageTenant(req.PathValue("id"))
	}
	manageUsers := func(c domain.Capabilities, req *http.Request) bool {
		return c.CanManageUsers(req.PathValue("id"))
	}

	r.Mux.Handle("GET /api/tenants/{id}/admin-consent/url", r.admin(h.HandleAdminConsentURL, manageTenant))
	r.Mux.Handle("GET /api/tenants/{id}/admin-consent", r.admin(h.HandleAdminConsentStatus, manageTenant))
	r.Mux.Handle("POST /api/tenants/{id}/admin-consent", r.admin(h.HandleMarkAdminConsent, manageTenant))
	r.Mux.Handle("GET /api/tenants/{id}/users", r.admin(h.HandleListUsers, manageUsers))
}

func (r *Router) registerClients() {
	h := &ClientsHandler{ClientService: r.ClientService}

	manageClients := func(c domain.Capabilities, _ *http.Request) bool { return c.CanManageClients() }

	r.Mux.Handle("POST /api/clients", r.admin(h.HandleCreate, manageClients))
	r.Mux.Handle("GET /api/clients", r.admin(h.HandleList, manageClients))
	r.Mux.Handle("DELETE /api/clients/{id}", r.admin(h.HandleDelete, manageClients))
}

func (r *Router) registerKeyRotation() {
	h := &KeyRotationHandler{KeyRotationService: r.KeyRotationService}

	manageKeys := func(c domain.Capabilities, _ *http.Request) bool { return c.CanManageKeys() }

	r.Mux.Handle("POST /api/keys/rotate", r.admin(h.HandleRotate, manageKeys))
	r.Mux.Handle("GET /api/keys", r.admin(h.HandleListKeys, manageKeys))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /metrics", promhttp.Handler())
}
