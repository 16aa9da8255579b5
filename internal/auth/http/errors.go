package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
)

// protocolErrors maps service sentinels onto the OAuth2 errors clients see.
// Order matters only in that the first match wins.
var protocolErrors = []struct {
	err   error
	oauth *authsdk.OAuth2Error
}{
	{service.ErrInvalidRequest, authsdk.ErrInvalidRequest},
	{service.ErrInvalidClient, authsdk.ErrInvalidClient},
	{service.ErrInvalidGrant, authsdk.ErrInvalidGrant},
	{service.ErrUnauthorizedClient, authsdk.ErrUnauthorizedClient},
	{service.ErrUnsupportedGrantType, authsdk.ErrUnsupportedGrantType},
	{service.ErrUnsupportedResponseType, authsdk.ErrUnsupportedResponseType},
	{service.ErrInvalidScope, authsdk.ErrInvalidScope},
	{service.ErrAccessDenied, authsdk.ErrAccessDenied},
	{service.ErrLoginRequired, authsdk.ErrLoginRequired},
	{service.ErrConsentRequired, authsdk.ErrConsentRequired},
	{service.ErrInvalidToken, authsdk.ErrInvalidToken},
}

// oauthError translates err, or returns nil when err is not a protocol
// error and must be reported as server_error.
func oauthError(err error) *authsdk.OAuth2Error {
	for _, m := range protocolErrors {
		if errors.Is(err, m.err) {
			return m.oauth
		}
	}
	return nil
}

// writeOAuthError writes the protocol error for err. Anything unexpected is
// logged in full and surfaced only as server_error.
func writeOAuthError(w http.ResponseWriter, log *slog.Logger, msg string, err error) {
	oe := oauthError(err)
	if oe == nil {
		log.Error(msg, "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	var ae *service.AuthorizeError
	if errors.As(err, &ae) && ae.Description != "" {
		oe = oe.WithDescription(ae.Description)
	}

	log.Debug(msg, "error", err)
	oe.WriteError(w)
}

// authorizeRedirect renders a redirectable authorization error as the
// client callback URL carrying error, error_description and state.
func authorizeRedirect(ae *service.AuthorizeError) (string, error) {
	oe := oauthError(ae.Err)
	if oe == nil {
		oe = authsdk.ErrServerError
	}
	if ae.Description != "" {
		oe = oe.WithDescription(ae.Description)
	}
	return oe.RedirectURL(ae.RedirectURI, ae.State)
}
