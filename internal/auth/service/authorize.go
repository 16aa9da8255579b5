package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/go-playground/validator/v10"
	"github.com/google/go-querystring/query"
)

var (
	ErrLoginRequired           = errors.New("login_required")
	ErrConsentRequired         = errors.New("consent_required")
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrAccessDenied            = errors.New("access_denied")
	ErrPendingNotFound         = errors.New("pending authorization not found or expired")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Scopes this server understands. Anything else in a request is invalid_scope.
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeTenant        = "tenant"
	ScopeOfflineAccess = "offline_access"

	// ScopeAdmin lets an access token reach the administrative API. The
	// user's role is checked on every call as well.
	ScopeAdmin = "admin"
)

// SupportedScopes is advertised in discovery.
var SupportedScopes = []string{ScopeOpenID, ScopeProfile, ScopeEmail, ScopeTenant, ScopeOfflineAccess, ScopeAdmin}

const (
	defaultCodeTTL    = 5 * time.Minute
	defaultPendingTTL = 10 * time.Minute
)

// AuthorizeService is the authorization endpoint: it validates requests,
// sends unauthenticated users to login, asks for consent when it is missing,
// and issues single-use authorization codes.
type AuthorizeService struct {
	Store    store.Store
	Clients  *ClientService
	Consents *ConsentService

	CodeTTL    time.Duration
	PendingTTL time.Duration

	// PlatformClientID is our own first-party application. It never needs
	// consent.
	PlatformClientID string

	LoginURL      string // where unauthenticated users are sent
	ConsentURL    string // where users approve scopes
	AuthorizePath string // where a parked request resumes
}

// AuthorizeRequest is an authorization request as it arrives on
// /oauth/authorize. The same shape is parked while the user logs in and
// handed to the consent page, so it encodes back into a query string.
type AuthorizeRequest struct {
	ResponseType        string `url:"response_type" json:"response_type" validate:"required"`
	ClientID            string `url:"client_id" json:"client_id" validate:"required"`
	RedirectURI         string `url:"redirect_uri" json:"redirect_uri" validate:"required"`
	Scope               string `url:"scope,omitempty" json:"scope,omitempty"`
	State               string `url:"state,omitempty" json:"state,omitempty"`
	CodeChallenge       string `url:"code_challenge,omitempty" json:"code_challenge,omitempty"`
	CodeChallengeMethod string `url:"code_challenge_method,omitempty" json:"code_challenge_method,omitempty"`
	Nonce               string `url:"nonce,omitempty" json:"nonce,omitempty"`
	Prompt              string `url:"prompt,omitempty" json:"prompt,omitempty"`
}

// ConsentDecision is the user's answer to a consent prompt, together with
// the original request parameters.
type ConsentDecision struct {
	AuthorizeRequest
	Approved bool `json:"approved"`
}

// ConsentPrompt describes what the user is asked to approve.
type ConsentPrompt struct {
	ClientID    string   `json:"client_id"`
	ClientName  string   `json:"client_name"`
	Environment string   `json:"environment"`
	Scopes      []string `json:"scopes"`
	RedirectURI string   `json:"redirect_uri"`
}

// OutcomeKind says what the user agent should do next.
type OutcomeKind int

const (
	OutcomeIssueCode OutcomeKind = iota + 1
	OutcomeLoginRequired
	OutcomeConsentRequired
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIssueCode:
		return "issue_code"
	case OutcomeLoginRequired:
		return "login_required"
	case OutcomeConsentRequired:
		return "consent_required"
	}
	return "unknown"
}

// AuthorizeOutcome is a successful step of the authorization flow.
type AuthorizeOutcome struct {
	Kind OutcomeKind

	// RedirectURL is the client callback carrying code and state, the login
	// page carrying the pending key, or the consent page carrying the
	// original parameters.
	RedirectURL string

	// PendingKey is set for OutcomeLoginRequired.
	PendingKey string
}

// AuthorizeError is a protocol error of the authorization endpoint. Once
// the redirect URI has been verified against the client, errors are sent
// back to it (RedirectURI is set); before that they are shown to the user
// agent directly, so an attacker cannot bounce errors to an arbitrary URI.
type AuthorizeError struct {
	Err         error
	Description string
	RedirectURI string
	State       string
}

func (e *AuthorizeError) Error() string { return fmt.Sprintf("%v: %s", e.Err, e.Description) }
func (e *AuthorizeError) Unwrap() error { return e.Err }

// Redirectable reports whether the error may be returned to the client.
func (e *AuthorizeError) Redirectable() bool { return e.RedirectURI != "" }

type codeRedirect struct {
	Code  string `url:"code"`
	State string `url:"state,omitempty"`
}

type loginRedirect struct {
	Pending string `url:"pending"`
}

// BeginAuthorization handles one authorization request.
//
// Checks run in a fixed order: required parameters, then the client
// (invalid_client), then the redirect URI (invalid_request), then the
// response type, then PKCE. Only errors after the redirect URI check are
// redirectable.
//
// Without a session the request is parked under an opaque key and the
// outcome points at the login page. With a session the code is issued
// directly for the platform client or when an active consent exists for
// the exact scope set; otherwise the outcome points at the consent page.
// prompt=none turns both detours into errors sent back to the client.
func (s *AuthorizeService) BeginAuthorization(ctx context.Context, req AuthorizeRequest, session *Session) (AuthorizeOutcome, error) {
	client, scopes, err := s.validateRequest(ctx, &req)
	if err != nil {
		return AuthorizeOutcome{}, err
	}
	promptNone := slices.Contains(strings.Fields(req.Prompt), "none")

	if session != nil {
		if _, err := s.Store.Users().GetUserByID(ctx, session.UserID); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return AuthorizeOutcome{}, err
			}
			session = nil
		}
	}

	if session == nil {
		if promptNone {
			return AuthorizeOutcome{}, s.redirectError(req, ErrLoginRequired, "the user is not signed in")
		}

		key, err := s.park(ctx, req)
		if err != nil {
			return AuthorizeOutcome{}, err
		}
		target, err := authsdk.AppendQuery(s.LoginURL, loginRedirect{Pending: key})
		if err != nil {
			return AuthorizeOutcome{}, err
		}
		return AuthorizeOutcome{Kind: OutcomeLoginRequired, RedirectURL: target, PendingKey: key}, nil
	}

	if client.ID != s.PlatformClientID {
		ok, err := s.Consents.HasConsent(ctx, session.UserID, client.ID, ScopeHash(scopes))
		if err != nil {
			return AuthorizeOutcome{}, err
		}
		if !ok {
			if promptNone {
				return AuthorizeOutcome{}, s.redirectError(req, ErrConsentRequired, "the user has not approved these scopes")
			}

			target, err := authsdk.AppendQuery(s.ConsentURL, req)
			if err != nil {
				return AuthorizeOutcome{}, err
			}
			return AuthorizeOutcome{Kind: OutcomeConsentRequired, RedirectURL: target}, nil
		}
	}

	return s.issueCode(ctx, client, req, scopes, *session)
}

// ConsentPrompt validates the parameters handed to the consent page and
// describes the client and scopes the user is asked about.
func (s *AuthorizeService) ConsentPrompt(ctx context.Context, req AuthorizeRequest) (ConsentPrompt, error) {
	client, scopes, err := s.validateRequest(ctx, &req)
	if err != nil {
		return ConsentPrompt{}, err
	}

	return ConsentPrompt{
		ClientID:    client.ID,
		ClientName:  client.Name,
		Environment: client.Environment,
		Scopes:      scopes,
		RedirectURI: req.RedirectURI,
	}, nil
}

// DecideConsent applies the user's answer. The original parameters are
// validated again, since they came back through the browser. Approval
// records the consent and issues the code; denial sends access_denied
// back to the client with the original state.
func (s *AuthorizeService) DecideConsent(ctx context.Context, d ConsentDecision, session *Session) (AuthorizeOutcome, error) {
	if session == nil {
		return AuthorizeOutcome{}, ErrLoginRequired
	}

	req := d.AuthorizeRequest
	client, scopes, err := s.validateRequest(ctx, &req)
	if err != nil {
		return AuthorizeOutcome{}, err
	}

	if !d.Approved {
		return AuthorizeOutcome{}, s.redirectError(req, ErrAccessDenied, "the user denied the request")
	}

	if _, err := s.Consents.Grant(ctx, session.UserID, client.ID, scopes); err != nil {
		return AuthorizeOutcome{}, err
	}

	return s.issueCode(ctx, client, req, scopes, *session)
}

// ResumeAuthorization consumes a parked request and returns the authorize
// URL to continue with, now that the user has a session. Each key resumes
// at most once.
func (s *AuthorizeService) ResumeAuthorization(ctx context.Context, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrPendingNotFound
	}

	p, err := s.Store.PendingAuthorizations().ConsumePendingAuthorization(ctx, cryptox.FingerprintToken(key))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrPendingNotFound
		}
		return "", err
	}
	if !time.Now().Before(p.ExpiresAt) {
		return "", ErrPendingNotFound
	}

	path := s.AuthorizePath
	if path == "" {
		path = "/oauth/authorize"
	}
	return path + "?" + p.Query, nil
}

// validateRequest applies the checks shared by every entry point and
// returns the client and the normalised scopes. req is normalised in place.
func (s *AuthorizeService) validateRequest(ctx context.Context, req *AuthorizeRequest) (domain.Client, []string, error) {
	if err := validate.Struct(req); err != nil {
		return domain.Client{}, nil, &AuthorizeError{
			Err:         ErrInvalidRequest,
			Description: "response_type, client_id and redirect_uri are required",
		}
	}

	client, err := s.Clients.FindClient(ctx, req.ClientID, s.Clients.Environment)
	if err != nil {
		if errors.Is(err, ErrInvalidClient) {
			return domain.Client{}, nil, &AuthorizeError{Err: ErrInvalidClient, Description: "unknown client"}
		}
		return domain.Client{}, nil, err
	}

	if !client.AllowsRedirect(req.RedirectURI) {
		return domain.Client{}, nil, &AuthorizeError{
			Err:         ErrInvalidRequest,
			Description: "redirect_uri is not registered for this client",
		}
	}

	if req.ResponseType != "code" {
		return domain.Client{}, nil, s.redirectError(*req, ErrUnsupportedResponseType, "only response_type=code is supported")
	}
	if !client.AllowsGrant(domain.GrantTypeAuthorizationCode) {
		return domain.Client{}, nil, s.redirectError(*req, ErrUnauthorizedClient, "the client may not use the authorization code grant")
	}

	req.CodeChallenge = strings.TrimSpace(req.CodeChallenge)
	switch {
	case req.CodeChallenge == "" && client.PKCERequired:
		return domain.Client{}, nil, s.redirectError(*req, ErrInvalidRequest, "code_challenge is required")
	case req.CodeChallenge == "" && req.CodeChallengeMethod != "":
		return domain.Client{}, nil, s.redirectError(*req, ErrInvalidRequest, "code_challenge_method without code_challenge")
	case req.CodeChallenge != "":
		method, ok := normalizePKCEMethod(req.CodeChallengeMethod)
		if !ok {
			return domain.Client{}, nil, s.redirectError(*req, ErrInvalidRequest, "unsupported code_challenge_method")
		}
		req.CodeChallengeMethod = method
	}

	scopes := NormalizeScopes(req.Scope)
	for _, sc := range scopes {
		if !slices.Contains(SupportedScopes, sc) {
			return domain.Client{}, nil, s.redirectError(*req, ErrInvalidScope, fmt.Sprintf("unknown scope %q", sc))
		}
	}

	return client, scopes, nil
}

func (s *AuthorizeService) redirectError(req AuthorizeRequest, err error, desc string) *AuthorizeError {
	return &AuthorizeError{Err: err, Description: desc, RedirectURI: req.RedirectURI, State: req.State}
}

// park stores the request until the user has logged in and returns the
// opaque key that resumes it. Only the key's fingerprint is stored.
func (s *AuthorizeService) park(ctx context.Context, req AuthorizeRequest) (string, error) {
	key, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	values, err := query.Values(req)
	if err != nil {
		return "", err
	}

	ttl := s.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}

	now := time.Now()
	err = s.Store.PendingAuthorizations().CreatePendingAuthorization(ctx, domain.PendingAuthorization{
		KeyHash:   cryptox.FingerprintToken(key),
		Query:     values.Encode(),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *AuthorizeService) issueCode(
	ctx context.Context,
	client domain.Client,
	req AuthorizeRequest,
	scopes []string,
	session Session,
) (AuthorizeOutcome, error) {
	code, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return AuthorizeOutcome{}, err
	}

	ttl := s.CodeTTL
	if ttl <= 0 {
		ttl = defaultCodeTTL
	}

	now := time.Now()
	err = s.Store.AuthorizationCodes().CreateAuthorizationCode(ctx, domain.AuthorizationCode{
		CodeHash:            cryptox.FingerprintToken(code),
		ClientID:            client.ID,
		UserID:              session.UserID,
		Scope:               strings.Join(scopes, " "),
		RedirectURI:         req.RedirectURI,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Nonce:               req.Nonce,
		SessionID:           session.SessionID,
		AMR:                 session.AMR,
		AuthTime:            session.AuthTime,
		ExpiresAt:           now.Add(ttl),
		CreatedAt:           now,
	})
	if err != nil {
		return AuthorizeOutcome{}, err
	}

	target, err := authsdk.AppendQuery(req.RedirectURI, codeRedirect{Code: code, State: req.State})
	if err != nil {
		return AuthorizeOutcome{}, err
	}

	authorizationCodesIssued.Inc()
	return AuthorizeOutcome{Kind: OutcomeIssueCode, RedirectURL: target}, nil
}

// normalizePKCEMethod defaults a missing method to plain (RFC 7636 4.3).
func normalizePKCEMethod(method string) (string, bool) {
	method = strings.TrimSpace(method)
	switch {
	case method == "" || strings.EqualFold(method, cryptox.PKCEMethodPlain):
		return cryptox.PKCEMethodPlain, true
	case strings.EqualFold(method, cryptox.PKCEMethodS256):
		return cryptox.PKCEMethodS256, true
	default:
		return "", false
	}
}
