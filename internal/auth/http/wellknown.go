package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
)

const (
	discoveryMaxAge = time.Hour

	// Short enough that a rotated key is picked up well before the old
	// one is purged.
	jwksMaxAge = 5 * time.Minute
)

// DiscoveryHandler godoc
//
//	@Summary		OpenID Provider metadata
//	@Description	Returns the OpenID Connect discovery document. Every endpoint is absolute and rooted at the issuer.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.DiscoveryDocument
//	@Router			/.well-known/openid-configuration [get]
func DiscoveryHandler(issuer string) http.HandlerFunc {
	doc := authsdk.DiscoveryDocument{
		Issuer:                            issuer,
		AuthorizationEndpoint:             issuer + "/oauth/authorize",
		TokenEndpoint:                     issuer + "/oauth/token",
		UserinfoEndpoint:                  issuer + "/oauth/userinfo",
		JWKSURI:                           issuer + "/.well-known/jwks.json",
		IntrospectionEndpoint:             issuer + "/oauth/introspect",
		RevocationEndpoint:                issuer + "/oauth/revoke",
		EndSessionEndpoint:                issuer + "/oauth/logout",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{domain.GrantTypeAuthorizationCode, domain.GrantTypeRefreshToken},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{jwtx.AlgorithmRS256},
		ScopesSupported:                   service.SupportedScopes,
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
		CodeChallengeMethodsSupported:     []string{cryptox.PKCEMethodS256, cryptox.PKCEMethodPlain},
		ClaimsSupported: []string{
			"sub", "iss", "aud", "exp", "iat", "auth_time", "nonce", "amr", "sid",
			"name", "preferred_username", "email", "email_verified", "tenant_id",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteCacheableJSON(w, http.StatusOK, doc, discoveryMaxAge)
	}
}

// jwksSource is anything that can publish verification keys.
type jwksSource interface {
	PublicJWKS() jwtx.JWKS
}

// JWKSHandler godoc
//
//	@Summary		Get JWKS
//	@Description	Returns the public keys that verify tokens signed by this issuer. Retired keys stay
//	@Description	published until the tokens they signed have expired.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get]
func JWKSHandler(keys jwksSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteCacheableJSON(w, http.StatusOK, authsdk.JWKSResponse(keys.PublicJWKS()), jwksMaxAge)
	}
}
