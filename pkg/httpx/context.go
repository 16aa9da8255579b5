package httpx

import (
	"context"

	"github.com/aussiebroadwan/maturity/pkg/jwtx"
)

type ctxKey string

const (
	CtxKeyUserID ctxKey = "user_id"
	CtxKeyScopes ctxKey = "scopes"
	CtxKeyClaims ctxKey = "claims"
	CtxKeyToken  ctxKey = "raw_token"
)

func scopesFromCtx(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyScopes).([]string); ok {
		return v
	}
	return nil
}

// ClaimsFromContext returns the verified claims placed by AuthnMiddleware or
// SessionMiddleware.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(CtxKeyClaims).(jwtx.Claims)
	return c, ok
}

// UserIDFromContext returns the authenticated subject, or "".
func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyUserID).(string)
	return v
}

// RawTokenFromContext returns the bearer token as presented. Handlers that
// need a database lookup of the token (userinfo, revocation checks) use it.
func RawTokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyToken).(string)
	return v
}

// ContextWithClaims attaches verified claims the same way the middlewares do.
func ContextWithClaims(ctx context.Context, c jwtx.Claims) context.Context {
	ctx = context.WithValue(ctx, CtxKeyUserID, c.Subject)
	ctx = context.WithValue(ctx, CtxKeyScopes, c.Scopes())
	ctx = context.WithValue(ctx, CtxKeyClaims, c)
	return ctx
}
