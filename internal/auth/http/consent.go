package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// ConsentHandler serves the consent page API and the user's list of
// applications they have approved. Every route requires a session.
type ConsentHandler struct {
	AuthorizeService *service.AuthorizeService
	ConsentService   *service.ConsentService
}

// HandlePrompt godoc
//
//	@Summary		Describe a consent prompt
//	@Description	Validates the authorization parameters the consent page was opened with and
//	@Description	returns the application and the scopes the user is asked to approve.
//	@Tags			Consent
//	@Produce		json
//	@Security		SessionCookie
//	@Param			client_id		query		string	true	"OAuth2 client identifier"
//	@Param			redirect_uri	query		string	true	"Callback URI"
//	@Param			response_type	query		string	true	"Must be 'code'"
//	@Param			scope			query		string	false	"Space-delimited scopes"
//	@Success		200				{object}	authsdk.ConsentPromptResponse
//	@Failure		400				{object}	authsdk.ErrorResponse
//	@Failure		401				{object}	authsdk.ErrorResponse	"No session"
//	@Router			/api/oauth/consent [get]
func (h *ConsentHandler) HandlePrompt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	req, err := authorizeRequestFromQuery(r.URL.Query())
	if err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	prompt, err := h.AuthorizeService.ConsentPrompt(ctx, req)
	if err != nil {
		writeOAuthError(w, log, "consent prompt rejected", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.ConsentPromptResponse{
		ClientID:    prompt.ClientID,
		ClientName:  prompt.ClientName,
		Environment: prompt.Environment,
		Scopes:      prompt.Scopes,
		RedirectURI: prompt.RedirectURI,
	})
}

// HandleDecision godoc
//
//	@Summary		Approve or deny a consent prompt
//	@Description	Records the user's answer. The response carries the URL the browser goes to next:
//	@Description	the client callback with a code on approval, or with error=access_denied on denial.
//	@Tags			Consent
//	@Accept			json
//	@Produce		json
//	@Security		SessionCookie
//	@Param			request	body		authsdk.ConsentDecisionRequest	true	"Decision and original parameters"
//	@Success		200		{object}	authsdk.RedirectResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"No session"
//	@Router			/api/oauth/consent [post]
func (h *ConsentHandler) HandleDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.ConsentDecisionRequest
	if err := httpx.Decode(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	out, err := h.AuthorizeService.DecideConsent(ctx, service.ConsentDecision{
		AuthorizeRequest: service.AuthorizeRequest{
			ResponseType:        req.ResponseType,
			ClientID:            req.ClientID,
			RedirectURI:         req.RedirectURI,
			Scope:               req.Scope,
			State:               req.State,
			CodeChallenge:       req.CodeChallenge,
			CodeChallengeMethod: req.CodeChallengeMethod,
			Nonce:               req.Nonce,
		},
		Approved: req.Approved,
	}, sessionFromContext(ctx))
	if err != nil {
		var ae *service.AuthorizeError
		if errors.As(err, &ae) && ae.Redirectable() {
			target, rerr := authorizeRedirect(ae)
			if rerr != nil {
				log.Error("failed to build error redirect", "error", rerr)
				authsdk.ErrServerError.WriteError(w)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, authsdk.RedirectResponse{RedirectURL: target})
			return
		}
		writeOAuthError(w, log, "consent decision rejected", err)
		return
	}

	log.Info("consent approved", "client_id", req.ClientID)
	httpx.WriteJSON(w, http.StatusOK, authsdk.RedirectResponse{RedirectURL: out.RedirectURL})
}

// HandleList godoc
//
//	@Summary		List approved applications
//	@Tags			Consent
//	@Produce		json
//	@Security		SessionCookie
//	@Success		200	{array}		authsdk.ConsentInfo
//	@Failure		401	{object}	authsdk.ErrorResponse	"No session"
//	@Router			/api/oauth/consents [get]
func (h *ConsentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	consents, err := h.ConsentService.List(ctx, httpx.UserIDFromContext(ctx))
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list consents", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	out := make([]authsdk.ConsentInfo, len(consents))
	for i, c := range consents {
		out[i] = consentInfo(c)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleRevoke godoc
//
//	@Summary		Revoke an approval
//	@Description	Withdraws consent. Tokens the application holds for the user are revoked with it.
//	@Tags			Consent
//	@Security		SessionCookie
//	@Param			id	path	string	true	"Consent ID"
//	@Success		204	"Consent revoked"
//	@Failure		401	{object}	authsdk.ErrorResponse	"No session"
//	@Failure		404	{object}	authsdk.ErrorResponse	"Unknown consent"
//	@Router			/api/oauth/consents/{id} [delete]
func (h *ConsentHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	err := h.ConsentService.Revoke(ctx, httpx.UserIDFromContext(ctx), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, service.ErrConsentNotFound) {
			httpx.WriteJSON(w, http.StatusNotFound, authsdk.ErrorResponse{
				Error:            "consent_not_found",
				ErrorDescription: "Consent not found",
			})
			return
		}
		slogx.FromContext(ctx).Error("failed to revoke consent", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func consentInfo(c domain.UserConsent) authsdk.ConsentInfo {
	return authsdk.ConsentInfo{
		ID:         c.ID,
		ClientID:   c.ClientID,
		ClientName: c.ClientName,
		Scopes:     c.Scopes,
		CreatedAt:  c.CreatedAt.UTC().Format(time.RFC3339),
		LastUsedAt: c.LastUsedAt.UTC().Format(time.RFC3339),
	}
}
