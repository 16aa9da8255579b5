package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// sessionCookie writes the browser session cookie. SameSite=Lax keeps it
// on the top-level navigations the authorize and federation flows rely on.
type sessionCookie struct {
	Name   string
	Secure bool
}

func (c sessionCookie) set(w http.ResponseWriter, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c sessionCookie) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionFromContext returns the session SessionMiddleware verified, or nil
// for an anonymous request.
func sessionFromContext(ctx context.Context) *service.Session {
	c, ok := httpx.ClaimsFromContext(ctx)
	if !ok || c.Use != jwtx.TokenUseSession || c.Subject == "" {
		return nil
	}

	s := &service.Session{UserID: c.Subject, SessionID: c.SID, AMR: c.AMR}
	if c.AuthTime != nil {
		s.AuthTime = c.AuthTime.Time
	}
	return s
}

// capabilityCheck decides whether the caller may serve req.
type capabilityCheck func(domain.Capabilities, *http.Request) bool

// requireCapability loads the caller's role once per request and rejects
// the request unless allow approves it. Runs after AuthnMiddleware.
func requireCapability(users *service.UserService, allow capabilityCheck) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			_, caps, err := users.Capabilities(ctx, httpx.UserIDFromContext(ctx))
			if err != nil {
				if errors.Is(err, service.ErrUserNotFound) {
					authsdk.ErrInvalidToken.WriteError(w)
					return
				}
				slogx.FromContext(ctx).Error("failed to load capabilities", "error", err)
				authsdk.ErrServerError.WriteError(w)
				return
			}

			if !allow(caps, r) {
				authsdk.ErrAccessDenied.
					WithDescription("your role does not allow this operation").
					WriteError(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
