/*
Package authsdk provides a client SDK for the Maturity identity service.

# Overview

The authsdk package implements an OAuth 2.1 / OpenID Connect client for the
identity service. It provides unauthenticated and browser-style operations (via
SDKClient) and bearer-authenticated operations (via Session) with automatic
token refresh. The error vocabulary in errors.go is shared with the server.

# SDKClient vs Session

The package is organized around two main types:

  - SDKClient: public endpoints, the browser side of the code flow, and token requests
  - Session: bearer-authenticated operations with automatic token refresh

Create an SDKClient to interact with public endpoints:

	client := authsdk.NewSDKClient("https://auth.example.com")

	// Check service health
	health, err := client.GetLiveness(ctx)

	// Provider metadata and signing keys
	doc, err := client.GetDiscovery(ctx)
	jwks, err := client.GetJWKS(ctx)

# Authorization Code Flow

A relying party redirects the browser to BuildAuthorizeURL and later redeems
the returned code:

	pkce, _ := authsdk.GeneratePKCEChallenge()
	redirect := client.BuildAuthorizeURL(clientID, redirectURI, state, []string{"openid", "email"}, pkce)

	// ... the browser comes back to redirectURI?code=...&state=...
	code, gotState, err := authsdk.ParseAuthorizationCallback(callbackURL)
	tokens, err := client.ExchangeAuthorizationCode(ctx, clientID, clientSecret, code, redirectURI, pkce.Verifier)
	session := client.NewSessionFromTokens(clientID, clientSecret, tokens)

Authorize drives the same endpoint the way a browser would, which is what
tests and command line tools want:

	cookie, _, err := client.Login(ctx, authsdk.LoginRequest{Email: email, Password: password})
	req := authsdk.NewAuthorizeRequest(clientID, redirectURI, state, scopes, pkce)
	result, err := client.Authorize(ctx, cookie, req)
	switch {
	case result.Code != "":
		// redeem it
	case result.ConsentRequired("/consent"):
		loc, err := client.DecideConsent(ctx, cookie, req.ConsentDecision(true))
	case result.Pending != "":
		// the browser has no session; log in with Pending set to resume
	}

# Automatic Token Refresh

A Session refreshes its access token when fewer than 30 seconds remain,
before sending any authenticated request. Refresh tokens rotate: each one is
single use, and the Session always keeps the latest. Concurrent callers
share one refresh.

A Session is also an oauth2.TokenSource, so it can authorize requests to
resource servers that trust this issuer:

	hc := session.HTTPClient(ctx)
	resp, err := hc.Get("https://api.example.com/assessments")

# Scope Requirements

Administrative operations (clients, keys, tenants) require the "admin" scope on
the access token and an administrative role on the user. The SDK checks scopes
client-side before making requests; disable it to exercise the server checks:

	client.CheckScopes = false

# Error Handling

Errors returned by the server are *OAuth2Error values and match the predefined
errors with errors.Is, by error code:

	_, err := client.ExchangeAuthorizationCode(ctx, clientID, "", code, redirectURI, verifier)
	if errors.Is(err, authsdk.ErrInvalidGrant) {
		// the code was already used, expired, or the PKCE verifier was wrong
	}

# Thread Safety

Sessions are safe for concurrent use. Multiple goroutines can share a single
Session and make authenticated requests concurrently.
*/
package authsdk
