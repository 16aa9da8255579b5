package http

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// TokenHandler implements the OAuth2 token endpoint.
type TokenHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 token endpoint
//	@Description	Exchanges an authorization code or a refresh token for tokens.
//	@Description	Supported grant types: `authorization_code` (with PKCE) and `refresh_token` (rotating).
//	@Description	Client credentials may be sent with HTTP Basic or in the body, never both.
//	@Description	The body may be form encoded or JSON.
//	@Tags			OAuth2
//	@Accept			x-www-form-urlencoded
//	@Accept			json
//	@Produce		json
//	@Param			grant_type		formData	string	true	"authorization_code or refresh_token"	Enums(authorization_code, refresh_token)
//	@Param			client_id		formData	string	false	"Client identifier (when not using HTTP Basic)"
//	@Param			client_secret	formData	string	false	"Client secret (confidential clients, when not using HTTP Basic)"
//	@Param			code			formData	string	false	"Authorization code (authorization_code)"
//	@Param			redirect_uri	formData	string	false	"Redirect URI used in the authorization request (authorization_code)"
//	@Param			code_verifier	formData	string	false	"PKCE verifier (authorization_code)"
//	@Param			refresh_token	formData	string	false	"Refresh token (refresh_token)"
//	@Param			scope			formData	string	false	"Narrower scope (refresh_token)"
//	@Success		200				{object}	authsdk.TokenResponse
//	@Failure		400				{object}	authsdk.ErrorResponse
//	@Failure		401				{object}	authsdk.ErrorResponse
//	@Failure		500				{object}	authsdk.ErrorResponse
//	@Router			/oauth/token [post]
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req service.TokenRequest
	if err := httpx.Decode(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	basic, err := applyBasicAuth(r, &req.ClientID, &req.ClientSecret)
	if err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	pair, err := h.TokenService.Exchange(ctx, req)
	if err != nil {
		if basic && errors.Is(err, service.ErrInvalidClient) {
			w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
		}
		writeOAuthError(w, log, "token request failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		IDToken:      pair.IDToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
		Scope:        pair.Scope,
	})
}

var (
	errMultipleClientAuth = errors.New("client credentials must be sent with one method only")
	errClientIDMismatch   = errors.New("client_id does not match the authenticated client")
)

// applyBasicAuth copies HTTP Basic client credentials into id and secret.
// RFC 6749 2.3.1 form-encodes both before they are base64 encoded.
func applyBasicAuth(r *http.Request, id, secret *string) (bool, error) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false, nil
	}

	user, err := url.QueryUnescape(user)
	if err != nil {
		return true, err
	}
	pass, err = url.QueryUnescape(pass)
	if err != nil {
		return true, err
	}

	if *secret != "" {
		return true, errMultipleClientAuth
	}
	if *id != "" && *id != user {
		return true, errClientIDMismatch
	}

	*id, *secret = user, pass
	return true, nil
}
