package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if len(authz) < 7 || !strings.EqualFold(authz[:7], "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(authz[7:])
	return raw, raw != ""
}

// AuthnMiddleware requires a valid bearer access token signed by one of our
// keys. Revocation is not checked here; handlers that must honour it look
// the token up in storage.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				writeBearerError(w, "token verification failed")
				log.Warn("jwt verify failed", "err", err)
				return
			}

			ctx = ContextWithClaims(ctx, claims)
			ctx = context.WithValue(ctx, CtxKeyToken, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionMiddleware reads the browser session cookie. When required is false
// an absent or invalid cookie simply leaves the request anonymous, which is
// what the authorize endpoint wants.
func SessionMiddleware(cookieName string, v jwtx.Verifier, required bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			cookie, err := r.Cookie(cookieName)
			if err == nil && cookie.Value != "" {
				claims, err := v.Verify(cookie.Value)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(ContextWithClaims(ctx, claims)))
					return
				}
				slogx.FromContext(ctx).Debug("session cookie rejected", "err", err)
			}

			if required {
				WriteJSON(w, http.StatusUnauthorized, map[string]string{
					"error":             "login_required",
					"error_description": "an authenticated session is required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": desc,
	})
}
