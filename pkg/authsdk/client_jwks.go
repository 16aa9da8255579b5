package authsdk

import (
	"context"
	"net/http"
)

// GetJWKS retrieves the JSON Web Key Set for token verification.
func (c *SDKClient) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	return decodeAs[JWKSResponse](c.send(ctx, http.MethodGet, "/.well-known/jwks.json", nil))
}

// GetDiscovery retrieves the OpenID Provider metadata document.
func (c *SDKClient) GetDiscovery(ctx context.Context) (*DiscoveryDocument, error) {
	return decodeAs[DiscoveryDocument](c.send(ctx, http.MethodGet, "/.well-known/openid-configuration", nil))
}
