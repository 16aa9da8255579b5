package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// FederationHandler runs logins through external identity providers and
// provisions the resulting users.
type FederationHandler struct {
	FederationService   *service.FederationService
	ProvisioningService *service.ProvisioningService
	AuthorizeService    *service.AuthorizeService
	LoginService        *service.LoginService
	Cookies             sessionCookie

	// CallbackURL is the absolute URL of HandleCallback registered with
	// every provider.
	CallbackURL string

	// LoginURL receives error and error_description when a login fails.
	LoginURL string
}

type loginFailure struct {
	Error       string `url:"error"`
	Description string `url:"error_description,omitempty"`
}

// HandleBegin godoc
//
//	@Summary		Start a federated login
//	@Description	Redirects the browser to the identity provider. A pending key from /oauth/authorize
//	@Description	resumes that request after the login; otherwise returnUrl names a local path to land on.
//	@Tags			Federation
//	@Param			provider	path	string	true	"Identity provider name"	example(microsoft)
//	@Param			pending		query	string	false	"Pending authorization key"
//	@Param			returnUrl	query	string	false	"Local path to continue to"
//	@Param			redirect	query	string	false	"Alias of returnUrl"
//	@Success		302			"Redirect to the identity provider"
//	@Failure		302			"Redirect to the login page with error"
//	@Router			/auth/sso/{provider} [get]
func (h *FederationHandler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	q := r.URL.Query()

	returnURL := q.Get("returnUrl")
	if returnURL == "" {
		returnURL = q.Get("redirect")
	}
	target := service.SafeRedirectTarget(returnURL)
	if pending := q.Get("pending"); pending != "" {
		resumed, err := h.AuthorizeService.ResumeAuthorization(ctx, pending)
		switch {
		case errors.Is(err, service.ErrPendingNotFound):
			h.fail(w, r, "invalid_request", "The sign-in request has expired, please start again")
			return
		case err != nil:
			log.Error("failed to resume authorization", "error", err)
			h.fail(w, r, authsdk.ErrorCodeServerError, "")
			return
		}
		target = resumed
	}

	dest, err := h.FederationService.BeginFederation(ctx, r.PathValue("provider"), h.CallbackURL, target)
	if err != nil {
		if errors.Is(err, service.ErrUnknownProvider) {
			h.fail(w, r, "invalid_request", "Unknown identity provider")
			return
		}
		log.Error("failed to start federation", "error", err)
		h.fail(w, r, authsdk.ErrorCodeServerError, "")
		return
	}

	httpx.Found(w, r, dest)
}

// HandleCallback godoc
//
//	@Summary		Finish a federated login
//	@Description	Consumes the state, exchanges the code with the provider, provisions or links the
//	@Description	local user and sets the session cookie. The browser continues to the target bound at
//	@Description	the start of the login, or "/". Failures go to the login page with error set.
//	@Tags			Federation
//	@Param			code	query	string	false	"Authorization code from the provider"
//	@Param			state	query	string	true	"State issued by /auth/sso/{provider}"
//	@Param			error	query	string	false	"Error reported by the provider"
//	@Success		302		"Redirect to the post-login target"
//	@Failure		302		"Redirect to the login page with error"
//	@Router			/auth/sso/callback [get]
func (h *FederationHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	q := r.URL.Query()

	if perr := q.Get("error"); perr != "" {
		log.Info("identity provider returned an error", "error", perr, "description", q.Get("error_description"))
		h.fail(w, r, authsdk.ErrorCodeAccessDenied, "Sign-in was cancelled or refused by the identity provider")
		return
	}

	fl, err := h.FederationService.CompleteFederation(ctx, q.Get("code"), q.Get("state"), h.CallbackURL)
	if err != nil {
		if errors.Is(err, service.ErrInvalidState) || errors.Is(err, service.ErrUnknownProvider) {
			h.fail(w, r, "invalid_request", "The sign-in request has expired, please start again")
			return
		}
		h.fail(w, r, authsdk.ErrorCodeAccessDenied, "The identity provider did not confirm your identity")
		return
	}

	user, err := h.ProvisioningService.ProvisionOrLink(ctx, fl.Identity)
	if err != nil {
		var pe *service.ProvisioningError
		switch {
		case errors.As(err, &pe):
			h.fail(w, r, pe.Code, pe.Message)
		case errors.Is(err, service.ErrIdentityConflict):
			h.fail(w, r, "identity_conflict", "This email is already linked to another account")
		case errors.Is(err, service.ErrMissingIdentity):
			h.fail(w, r, authsdk.ErrorCodeAccessDenied, "The identity provider did not share your email address")
		default:
			log.Error("failed to provision user", "error", err)
			h.fail(w, r, authsdk.ErrorCodeServerError, "")
		}
		return
	}

	cookie, err := h.LoginService.IssueSession(ctx, service.NewSession(user.ID, jwtx.AMRFederated))
	if err != nil {
		log.Error("failed to issue session", "error", err)
		h.fail(w, r, authsdk.ErrorCodeServerError, "")
		return
	}
	h.Cookies.set(w, cookie, h.LoginService.SessionLifetime())

	target := fl.PostLoginTarget
	if target == "" {
		target = "/"
	}

	log.Info("federated login completed", "user_id", user.ID, "provider", fl.Identity.Provider)
	httpx.Found(w, r, target)
}

// fail sends the browser to the login page with the error to show.
func (h *FederationHandler) fail(w http.ResponseWriter, r *http.Request, code, desc string) {
	dest, err := authsdk.AppendQuery(h.LoginURL, loginFailure{Error: code, Description: desc})
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to build login redirect", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}
	httpx.Found(w, r, dest)
}
