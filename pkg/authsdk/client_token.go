package authsdk

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-querystring/query"
)

// tokenRequest is the form posted to the token endpoint. Public clients
// leave ClientSecret empty.
type tokenRequest struct {
	GrantType    string `url:"grant_type"`
	ClientID     string `url:"client_id"`
	ClientSecret string `url:"client_secret,omitempty"`
	Code         string `url:"code,omitempty"`
	RedirectURI  string `url:"redirect_uri,omitempty"`
	CodeVerifier string `url:"code_verifier,omitempty"`
	RefreshToken string `url:"refresh_token,omitempty"`
}

type revokeRequest struct {
	Token         string `url:"token"`
	TokenTypeHint string `url:"token_type_hint,omitempty"`
	ClientID      string `url:"client_id"`
	ClientSecret  string `url:"client_secret,omitempty"`
}

// ExchangeAuthorizationCode redeems an authorization code. redirectURI must
// be the one the code was issued for, and codeVerifier the PKCE verifier of
// the original request.
//
//	pkce, _ := authsdk.GeneratePKCEChallenge()
//	// ... the user authorizes and the client receives code ...
//	tokens, err := client.ExchangeAuthorizationCode(ctx, clientID, "", code, redirectURI, pkce.Verifier)
func (c *SDKClient) ExchangeAuthorizationCode(
	ctx context.Context,
	clientID, clientSecret, code, redirectURI, codeVerifier string,
) (*TokenResponse, error) {
	return c.requestToken(ctx, tokenRequest{
		GrantType:    "authorization_code",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         code,
		RedirectURI:  redirectURI,
		CodeVerifier: codeVerifier,
	})
}

// RefreshGrant redeems a refresh token. The presented token is spent;
// callers must keep the one in the response.
func (c *SDKClient) RefreshGrant(
	ctx context.Context,
	clientID, clientSecret, refreshToken string,
) (*TokenResponse, error) {
	return c.requestToken(ctx, tokenRequest{
		GrantType:    "refresh_token",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: refreshToken,
	})
}

// RevokeToken revokes an access or refresh token (RFC 7009). The server
// answers 200 whether or not the token was known.
func (c *SDKClient) RevokeToken(ctx context.Context, clientID, clientSecret, token string) error {
	form, err := query.Values(revokeRequest{Token: token, ClientID: clientID, ClientSecret: clientSecret})
	if err != nil {
		return fmt.Errorf("authsdk: encode revocation: %w", err)
	}

	resp, err := c.send(ctx, http.MethodPost, "/oauth/revoke", form)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusOK)
}

// Introspect asks whether a token is active (RFC 7662). The caller
// authenticates as a registered client with HTTP Basic.
func (c *SDKClient) Introspect(ctx context.Context, clientID, clientSecret, token string) (*IntrospectionResponse, error) {
	form, err := query.Values(struct {
		Token string `url:"token"`
	}{token})
	if err != nil {
		return nil, err
	}

	return decodeAs[IntrospectionResponse](c.send(ctx, http.MethodPost, "/oauth/introspect", form, withBasicAuth(clientID, clientSecret)))
}

// UserInfo fetches the OIDC userinfo document for an access token.
func (c *SDKClient) UserInfo(ctx context.Context, accessToken string) (*UserInfoResponse, error) {
	return decodeAs[UserInfoResponse](c.send(ctx, http.MethodGet, "/oauth/userinfo", nil, withBearer(accessToken)))
}

func (c *SDKClient) requestToken(ctx context.Context, tr tokenRequest) (*TokenResponse, error) {
	form, err := query.Values(tr)
	if err != nil {
		return nil, fmt.Errorf("authsdk: encode token request: %w", err)
	}

	return decodeAs[TokenResponse](c.send(ctx, http.MethodPost, "/oauth/token", form))
}
