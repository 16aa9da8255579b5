package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// EndSessionHandler is the RP-initiated logout endpoint. It always clears
// the session cookie; the browser is only sent on to a post-logout URI the
// client registered, matched exactly.
type EndSessionHandler struct {
	ClientService *service.ClientService
	KeyManager    *jwtx.KeyManager
	Cookies       sessionCookie
}

type postLogoutRedirect struct {
	State string `url:"state,omitempty"`
}

// ServeHTTP godoc
//
//	@Summary		RP-initiated logout
//	@Description	Ends the browser session. With a registered post_logout_redirect_uri the browser is sent back to the client,
//	@Description	otherwise to "/". The client is named by client_id or by the audience of id_token_hint.
//	@Tags			OAuth2
//	@Param			client_id					query	string	false	"Client the user is logging out of"
//	@Param			id_token_hint				query	string	false	"ID token previously issued to the client"
//	@Param			post_logout_redirect_uri	query	string	false	"Registered post-logout redirect URI"
//	@Param			state						query	string	false	"Opaque value echoed back to the client"
//	@Success		302							"Redirect after logout"
//	@Failure		400							{object}	authsdk.ErrorResponse	"post_logout_redirect_uri not registered"
//	@Router			/oauth/logout [get]
func (h *EndSessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	q := r.URL.Query()

	h.Cookies.clear(w)

	target := strings.TrimSpace(q.Get("post_logout_redirect_uri"))
	if target == "" {
		httpx.Found(w, r, "/")
		return
	}

	clientID := strings.TrimSpace(q.Get("client_id"))
	if hint := strings.TrimSpace(q.Get("id_token_hint")); hint != "" {
		claims, err := h.KeyManager.Verify(hint, jwtx.TokenUseID)
		switch {
		case err != nil:
			log.Debug("id_token_hint rejected", "error", err)
		case len(claims.Audience) == 0:
		case clientID != "" && clientID != claims.Audience[0]:
			authsdk.ErrInvalidRequest.WithDescription("client_id does not match id_token_hint").WriteError(w)
			return
		default:
			clientID = claims.Audience[0]
		}
	}

	client, err := h.ClientService.FindClient(ctx, clientID, h.ClientService.Environment)
	if err != nil {
		if errors.Is(err, service.ErrInvalidClient) {
			authsdk.ErrInvalidRequest.WithDescription("post_logout_redirect_uri requires a known client").WriteError(w)
			return
		}
		log.Error("failed to load client", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	if !client.AllowsPostLogoutRedirect(target) {
		authsdk.ErrInvalidRequest.WithDescription("post_logout_redirect_uri is not registered for this client").WriteError(w)
		return
	}

	dest, err := authsdk.AppendQuery(target, postLogoutRedirect{State: q.Get("state")})
	if err != nil {
		log.Error("failed to build logout redirect", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	log.Info("session ended", "client_id", client.ID)
	httpx.Found(w, r, dest)
}
