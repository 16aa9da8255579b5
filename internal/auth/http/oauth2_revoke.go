package http

import (
	"net/http"

	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// RevokeHandler serves POST /oauth/revoke following RFC 7009. Revoking
// either half of a pair revokes the pair. Unknown tokens, and tokens of
// other clients, still answer 200 so the endpoint cannot be used to probe
// for valid tokens.
type RevokeHandler struct {
	TokenService  *service.TokenService
	ClientService *service.ClientService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Revocation Endpoint
//	@Description	Revokes a previously issued access or refresh token (RFC 7009).
//	@Description	The endpoint is idempotent and returns 200 OK even for invalid/unknown tokens to prevent token scanning attacks.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			token			formData	string	true	"The token to revoke"
//	@Param			token_type_hint	formData	string	false	"Hint about token type"	Enums(access_token, refresh_token)
//	@Param			client_id		formData	string	false	"Client identifier (when not using HTTP Basic)"
//	@Param			client_secret	formData	string	false	"Client secret (when not using HTTP Basic)"
//	@Success		200				"Token revoked successfully (or was already invalid)"
//	@Failure		400				{object}	authsdk.ErrorResponse	"error, error_description"
//	@Failure		401				{object}	authsdk.ErrorResponse	"client authentication failed"
//	@Header			200				{string}	Cache-Control			"no-store"
//	@Header			200				{string}	Pragma					"no-cache"
//	@Router			/oauth/revoke [post]
func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req tokenParams
	if err := httpx.Decode(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	clientID, err := authenticateClient(r, h.ClientService, &req)
	if err != nil {
		writeClientAuthError(w, log, err)
		return
	}

	if err := h.TokenService.RevokeForClient(ctx, clientID, req.Token); err != nil {
		// Per RFC 7009 the caller learns nothing about the token
		log.Warn("revoke failed", "client_id", clientID, "error", err)
	}

	httpx.NoCache(w)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{}"))
}
