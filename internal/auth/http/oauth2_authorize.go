package http

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// AuthorizeHandler is the OAuth2 authorization endpoint (authorization code flow).
type AuthorizeHandler struct {
	AuthorizeService *service.AuthorizeService
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 authorization endpoint
//	@Description	Starts the authorization code flow. The browser is always redirected:
//	@Description	- signed in and consented: back to redirect_uri with code and state
//	@Description	- not signed in: to the login page with a pending key that resumes this request
//	@Description	- consent missing: to the consent page with the original parameters
//	@Description
//	@Description	Errors found before redirect_uri is verified are returned as JSON and never redirected.
//	@Description	Later errors go back to redirect_uri with error, error_description and state.
//	@Description
//	@Description	**PKCE:** clients registered with PKCE must send code_challenge. A missing method means plain.
//	@Tags			OAuth2
//	@Produce		json
//	@Security		SessionCookie
//	@Param			response_type			query		string					true	"Must be 'code'"	default(code)
//	@Param			client_id				query		string					true	"OAuth2 client identifier"
//	@Param			redirect_uri			query		string					true	"Callback URI (must exactly match a registered redirect URI)"
//	@Param			scope					query		string					false	"Space-delimited list of scopes"	example("openid profile email")
//	@Param			state					query		string					false	"Opaque value echoed back to the client"
//	@Param			nonce					query		string					false	"OIDC nonce echoed in the ID token"
//	@Param			prompt					query		string					false	"'none' fails instead of showing login or consent"
//	@Param			code_challenge			query		string					false	"PKCE code challenge"	example("E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM")
//	@Param			code_challenge_method	query		string					false	"PKCE method"			default(plain)	Enums(S256, plain)
//	@Success		302						{string}	string					"Redirect to the client, the login page or the consent page"
//	@Failure		400						{object}	authsdk.ErrorResponse	"invalid_request (not redirected)"
//	@Failure		401						{object}	authsdk.ErrorResponse	"invalid_client (not redirected)"
//	@Router			/oauth/authorize [get]
func (h *AuthorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	req, err := authorizeRequestFromQuery(r.URL.Query())
	if err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	out, err := h.AuthorizeService.BeginAuthorization(ctx, req, sessionFromContext(ctx))
	if err != nil {
		writeAuthorizeError(w, r, "authorize request failed", err)
		return
	}

	log.Debug("authorize request handled", "client_id", req.ClientID, "outcome", out.Kind.String())
	httpx.Found(w, r, out.RedirectURL)
}

// writeAuthorizeError redirects errors that may go back to the client and
// writes the rest as JSON to the user agent (RFC 6749 4.1.2.1).
func writeAuthorizeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log := slogx.FromContext(r.Context())

	var ae *service.AuthorizeError
	if errors.As(err, &ae) && ae.Redirectable() {
		target, rerr := authorizeRedirect(ae)
		if rerr != nil {
			log.Error("failed to build error redirect", "error", rerr)
			authsdk.ErrServerError.WriteError(w)
			return
		}
		log.Debug(msg, "error", err)
		httpx.Found(w, r, target)
		return
	}

	writeOAuthError(w, log, msg, err)
}

var errRepeatedParameter = errors.New("authorization parameters must not be repeated")

// authorizeRequestFromQuery reads the request parameters. Repeated
// parameters are rejected outright (RFC 6749 3.1).
func authorizeRequestFromQuery(q url.Values) (service.AuthorizeRequest, error) {
	for _, vs := range q {
		if len(vs) > 1 {
			return service.AuthorizeRequest{}, errRepeatedParameter
		}
	}

	get := func(key string) string { return strings.TrimSpace(q.Get(key)) }
	return service.AuthorizeRequest{
		ResponseType:        get("response_type"),
		ClientID:            get("client_id"),
		RedirectURI:         get("redirect_uri"),
		Scope:               get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       get("code_challenge"),
		CodeChallengeMethod: get("code_challenge_method"),
		Nonce:               q.Get("nonce"),
		Prompt:              get("prompt"),
	}, nil
}
