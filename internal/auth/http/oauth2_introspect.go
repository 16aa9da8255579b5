package http

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// tokenParams is the body of the introspection and revocation endpoints.
type tokenParams struct {
	Token         string `json:"token" validate:"required"`
	TokenTypeHint string `json:"token_type_hint,omitempty" validate:"omitempty,oneof=access_token refresh_token"`
	ClientID      string `json:"client_id,omitempty"`
	ClientSecret  string `json:"client_secret,omitempty"`
}

// IntrospectHandler serves POST /oauth/introspect following RFC 7662.
// Callers authenticate as a registered client.
type IntrospectHandler struct {
	TokenService  *service.TokenService
	ClientService *service.ClientService
	Issuer        string
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Introspection Endpoint
//	@Description	Reports whether an access or refresh token is active (RFC 7662).
//	@Description	Unknown, expired and revoked tokens all answer {"active": false}.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			token			formData	string							true	"The token to introspect"
//	@Param			token_type_hint	formData	string							false	"Hint about the token type"	Enums(access_token, refresh_token)
//	@Success		200				{object}	authsdk.IntrospectionResponse	"Token introspection result"
//	@Failure		400				{object}	authsdk.ErrorResponse			"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse			"client authentication failed"
//	@Header			200				{string}	Cache-Control					"no-store"
//	@Header			200				{string}	Pragma							"no-cache"
//	@Router			/oauth/introspect [post]
func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req tokenParams
	if err := httpx.Decode(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	if _, err := authenticateClient(r, h.ClientService, &req); err != nil {
		writeClientAuthError(w, log, err)
		return
	}

	info, err := h.TokenService.Introspect(ctx, req.Token)
	if err != nil {
		log.Error("introspection failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	resp := authsdk.IntrospectionResponse{Active: info.Active}
	if info.Active {
		resp.Scope = info.Scope
		resp.ClientID = info.ClientID
		resp.TokenType = info.TokenType
		resp.Exp = info.ExpiresAt
		resp.Iat = info.IssuedAt
		resp.Sub = info.Subject
		resp.Iss = h.Issuer
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// authenticateClient resolves the calling client from HTTP Basic or body
// credentials.
func authenticateClient(r *http.Request, clients *service.ClientService, req *tokenParams) (string, error) {
	if _, err := applyBasicAuth(r, &req.ClientID, &req.ClientSecret); err != nil {
		return "", err
	}

	c, err := clients.Authenticate(r.Context(), req.ClientID, req.ClientSecret)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

func writeClientAuthError(w http.ResponseWriter, log *slog.Logger, err error) {
	var escErr url.EscapeError
	switch {
	case errors.Is(err, errMultipleClientAuth), errors.Is(err, errClientIDMismatch):
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
	case errors.Is(err, service.ErrInvalidClient), errors.As(err, &escErr):
		log.Debug("client authentication failed", "error", err)
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
		authsdk.ErrInvalidClient.WriteError(w)
	default:
		log.Error("client authentication failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
}
