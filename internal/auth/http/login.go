package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// LoginHandler signs users in with local credentials and out again.
type LoginHandler struct {
	LoginService     *service.LoginService
	AuthorizeService *service.AuthorizeService
	Cookies          sessionCookie
}

// loginErrors are the failures a login form can act on. All are 401 so the
// response does not reveal which step failed beyond what the user must do.
var loginErrors = []struct {
	err         error
	code        string
	description string
}{
	{service.ErrInvalidCredentials, "invalid_credentials", "Invalid email or password"},
	{service.ErrTOTPRequired, "totp_required", "A one-time code from your authenticator is required"},
	{service.ErrInvalidTOTPCode, "invalid_totp", "Invalid one-time code"},
}

// HandleLogin godoc
//
//	@Summary		Sign in with email and password
//	@Description	Verifies the credentials, and the TOTP code once an authenticator is confirmed, then sets the
//	@Description	session cookie. With a pending key from /oauth/authorize the response names the URL that
//	@Description	resumes the paused authorization request.
//	@Tags			Login
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"invalid_credentials, totp_required or invalid_totp"
//	@Router			/auth/login [post]
func (h *LoginHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.LoginRequest
	if err := httpx.Decode(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		authsdk.ErrInvalidRequest.WithDescription("email and password are required").WriteError(w)
		return
	}

	user, sess, err := h.LoginService.Authenticate(ctx, req.Email, req.Password, req.TOTP)
	if err != nil {
		for _, le := range loginErrors {
			if errors.Is(err, le.err) {
				httpx.WriteJSON(w, http.StatusUnauthorized, authsdk.ErrorResponse{
					Error:            le.code,
					ErrorDescription: le.description,
				})
				return
			}
		}
		log.Error("login failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	cookie, err := h.LoginService.IssueSession(ctx, sess)
	if err != nil {
		log.Error("failed to issue session", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	h.Cookies.set(w, cookie, h.LoginService.SessionLifetime())

	resp := authsdk.LoginResponse{UserID: user.ID}
	if req.Pending != "" {
		resp.RedirectURL, err = h.AuthorizeService.ResumeAuthorization(ctx, req.Pending)
		switch {
		case errors.Is(err, service.ErrPendingNotFound):
			log.Info("pending authorization expired or already resumed", "user_id", user.ID)
		case err != nil:
			log.Error("failed to resume authorization", "error", err)
		}
	}

	log.Info("user logged in", "user_id", user.ID, "amr", sess.AMR)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleLogout godoc
//
//	@Summary		Sign out
//	@Description	Clears the session cookie. Tokens already issued to applications stay valid until they expire or are revoked.
//	@Tags			Login
//	@Success		204	"Signed out"
//	@Router			/auth/logout [post]
func (h *LoginHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}
