package http

import (
	"net/http"

	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// UserInfoHandler serves the OIDC userinfo endpoint. The bearer token is
// checked against storage, so a revoked token stops working immediately.
type UserInfoHandler struct {
	TokenService *service.TokenService
}

// ServeHTTP handles the OpenID Connect UserInfo endpoint.
//
//	@Summary		Get user information
//	@Description	Returns the claims the access token's scopes release: `profile` gives name and preferred_username,
//	@Description	`email` gives email and email_verified, `tenant` gives tenant_id. `sub` is always present.
//	@Tags			OAuth2
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserInfoResponse	"Claims released by the token's scopes"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Invalid, expired or revoked access token"
//	@Failure		500	{object}	authsdk.ErrorResponse		"Internal server error"
//	@Router			/oauth/userinfo [get]
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	raw, ok := httpx.BearerToken(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		authsdk.ErrInvalidToken.WithDescription("missing bearer token").WriteError(w)
		return
	}

	info, err := h.TokenService.UserInfo(ctx, raw)
	if err != nil {
		if oauthError(err) != nil {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		}
		writeOAuthError(w, log, "userinfo failed", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.UserInfoResponse{
		Sub:               info.Subject,
		Name:              info.Name,
		PreferredUsername: info.PreferredUsername,
		Email:             info.Email,
		EmailVerified:     info.EmailVerified,
		TenantID:          info.TenantID,
	})
}
