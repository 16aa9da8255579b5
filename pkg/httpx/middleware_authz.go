package httpx

import (
	"net/http"
	"slices"
	"strings"
)

// RequireAnyScope lets the request through when the bearer token carries at
// least one of the scopes. Runs after AuthnMiddleware, which puts the
// token's scopes in the context.
func RequireAnyScope(required ...string) Middleware {
	challenge := `Bearer error="insufficient_scope", scope="` + strings.Join(required, " ") + `"`

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			have := scopesFromCtx(r.Context())
			if slices.ContainsFunc(required, func(s string) bool { return slices.Contains(have, s) }) {
				next.ServeHTTP(w, r)
				return
			}

			// RFC 6750 section 3.1
			w.Header().Set("WWW-Authenticate", challenge)
			WriteJSON(w, http.StatusForbidden, map[string]string{
				"error":             "insufficient_scope",
				"error_description": "the access token does not carry the required scope",
			})
		})
	}
}
