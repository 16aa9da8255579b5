package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// MFAHandler handles TOTP enrollment for the signed-in user.
type MFAHandler struct {
	LoginService *service.LoginService
}

// HandleEnroll godoc
//
//	@Summary		Start TOTP enrollment
//	@Description	Generates a TOTP secret for the signed-in user. It protects logins only after
//	@Description	/auth/mfa/totp/confirm has seen a valid code. Enrolling again before confirming
//	@Description	replaces the secret.
//	@Tags			MFA
//	@Security		SessionCookie
//	@Produce		json
//	@Success		200	{object}	authsdk.TOTPEnrollResponse	"Secret and otpauth:// URL"
//	@Failure		400	{object}	authsdk.ErrorResponse		"TOTP already enabled"
//	@Failure		401	{object}	authsdk.ErrorResponse		"No session"
//	@Failure		500	{object}	authsdk.ErrorResponse		"Internal server error"
//	@Router			/auth/mfa/totp/enroll [post]
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	userID := httpx.UserIDFromContext(ctx)

	enrollment, err := h.LoginService.EnrollTOTP(ctx, userID)
	if err != nil {
		writeMFAError(w, err, func() { log.Error("failed to enroll TOTP", "user_id", userID, "error", err) })
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPEnrollResponse{
		Secret:  enrollment.Secret,
		URL:     enrollment.URL,
		Issuer:  enrollment.Issuer,
		Account: enrollment.Account,
	})
}

// HandleConfirm godoc
//
//	@Summary		Confirm TOTP enrollment
//	@Description	Verifies a code from the enrolled authenticator and turns TOTP on for future logins.
//	@Tags			MFA
//	@Security		SessionCookie
//	@Accept			json
//	@Produce		json
//	@Param			request	body	authsdk.TOTPConfirmRequest	true	"Current TOTP code"
//	@Success		204		"TOTP enabled"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid code, not enrolled or already enabled"
//	@Failure		401		{object}	authsdk.ErrorResponse	"No session"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal server error"
//	@Router			/auth/mfa/totp/confirm [post]
func (h *MFAHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	userID := httpx.UserIDFromContext(ctx)

	var req authsdk.TOTPConfirmRequest
	if err := httpx.Decode(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	if err := h.LoginService.ConfirmTOTP(ctx, userID, req.Code); err != nil {
		writeMFAError(w, err, func() { log.Error("failed to confirm TOTP", "user_id", userID, "error", err) })
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeMFAError maps enrollment failures to 400s the user can act on.
// Anything else is reported through logUnexpected and surfaced as server_error.
func writeMFAError(w http.ResponseWriter, err error, logUnexpected func()) {
	var code, desc string
	switch {
	case errors.Is(err, service.ErrTOTPAlreadyEnabled):
		code, desc = "mfa_already_enabled", "TOTP is already enabled for this user"
	case errors.Is(err, service.ErrTOTPNotEnrolled):
		code, desc = "mfa_not_enrolled", "Start enrollment before confirming a code"
	case errors.Is(err, service.ErrInvalidTOTPCode):
		code, desc = "invalid_code", "Invalid TOTP code"
	case errors.Is(err, store.ErrNotFound):
		authsdk.ErrInvalidToken.WriteError(w)
		return
	default:
		logUnexpected()
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusBadRequest, authsdk.ErrorResponse{Error: code, ErrorDescription: desc})
}
