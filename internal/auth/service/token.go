package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/aussiebroadwan/maturity/pkg/idx"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

var (
	ErrInvalidCredentials   = errors.New("invalid_credentials")
	ErrInvalidClient        = errors.New("invalid_client")
	ErrInvalidScope         = errors.New("invalid_scope")
	ErrInvalidGrant         = errors.New("invalid_grant")
	ErrInvalidToken         = errors.New("invalid_token")
	ErrUnauthorizedClient   = errors.New("unauthorized_client")
	ErrUnsupportedGrantType = errors.New("unsupported_grant_type")
)

// TokenService is the token endpoint plus the resource-side lookups
// (introspection, userinfo, revocation).
//
// Access tokens are RS256 JWTs, refresh tokens are opaque 256-bit values.
// Both are persisted only as fingerprints, so a copy of the database is no
// copy of anyone's tokens.
type TokenService struct {
	Store      store.Store
	Clients    *ClientService
	KeyManager *jwtx.KeyManager
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	IDTokenTTL time.Duration
}

// TokenRequest is a token endpoint request, form or JSON encoded.
type TokenRequest struct {
	GrantType    string `json:"grant_type" validate:"required"`
	Code         string `json:"code,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Introspection is the RFC 7662 response. Anything unusable is just
// {active:false}, never why.
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Subject   string `json:"sub,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	TokenType string `json:"token_type,omitempty"`
}

// UserInfo holds the claims a token's scopes unlock.
type UserInfo struct {
	Subject           string `json:"sub"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     *bool  `json:"email_verified,omitempty"`
	TenantID          string `json:"tenant_id,omitempty"`
}

// Exchange dispatches on grant_type.
func (s *TokenService) Exchange(ctx context.Context, req TokenRequest) (*domain.TokenPair, error) {
	var (
		pair *domain.TokenPair
		err  error
	)
	switch req.GrantType {
	case domain.GrantTypeAuthorizationCode:
		pair, err = s.ExchangeCode(ctx, req)
	case domain.GrantTypeRefreshToken:
		pair, err = s.Refresh(ctx, req)
	default:
		return nil, ErrUnsupportedGrantType
	}

	tokenGrants.WithLabelValues(req.GrantType, outcome(err)).Inc()
	return pair, err
}

// ExchangeCode implements the authorization_code grant.
//
// The client is authenticated first. The code is then consumed with a
// single DELETE constrained by hash, client and redirect URI, so of any
// number of concurrent redemptions exactly one gets the row. Expiry and
// PKCE are checked after the row is gone: a failed attempt burns the code.
func (s *TokenService) ExchangeCode(ctx context.Context, req TokenRequest) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	if req.GrantType != domain.GrantTypeAuthorizationCode {
		return nil, ErrUnsupportedGrantType
	}

	client, err := s.Clients.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(domain.GrantTypeAuthorizationCode) {
		return nil, ErrUnauthorizedClient
	}

	code := strings.TrimSpace(req.Code)
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if code == "" || redirectURI == "" {
		return nil, ErrInvalidRequest
	}

	rec, err := s.Store.AuthorizationCodes().ConsumeAuthorizationCode(ctx, cryptox.FingerprintToken(code), client.ID, redirectURI)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Info("authorization code not found", "client_id", client.ID)
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	if rec.IsExpired(time.Now()) {
		l.Info("authorization code expired", "client_id", client.ID)
		return nil, ErrInvalidGrant
	}

	verifier := strings.TrimSpace(req.CodeVerifier)
	switch {
	case rec.CodeChallenge != "":
		if !cryptox.VerifyPKCE(rec.CodeChallengeMethod, rec.CodeChallenge, verifier) {
			l.Info("pkce verification failed", "client_id", client.ID)
			return nil, ErrInvalidGrant
		}
	case verifier != "":
		// A verifier for a code issued without a challenge is a downgrade attempt.
		return nil, ErrInvalidGrant
	}

	user, err := s.Store.Users().GetUserByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	tok, pair, err := s.mint(ctx, mintParams{
		user:      user,
		client:    client,
		scope:     rec.Scope,
		sessionID: rec.SessionID,
		amr:       rec.AMR,
		authTime:  rec.AuthTime,
		nonce:     rec.Nonce,
	})
	if err != nil {
		return nil, err
	}

	if err := s.Store.Tokens().CreateToken(ctx, tok); err != nil {
		return nil, err
	}

	l.Info("authorization code redeemed", "client_id", client.ID, "user_id", user.ID)
	return pair, nil
}

// Refresh implements the refresh_token grant with rotation. The presented
// refresh token is revoked by an UPDATE that only matches a live row, so
// two concurrent refreshes cannot both win. Presenting a refresh token
// that was already rotated away revokes every token the client holds for
// the user, since one of the two parties holding it is not legitimate.
func (s *TokenService) Refresh(ctx context.Context, req TokenRequest) (*domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	if req.GrantType != domain.GrantTypeRefreshToken {
		return nil, ErrUnsupportedGrantType
	}

	client, err := s.Clients.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.AllowsGrant(domain.GrantTypeRefreshToken) {
		return nil, ErrUnauthorizedClient
	}

	presented := strings.TrimSpace(req.RefreshToken)
	if presented == "" {
		return nil, ErrInvalidRequest
	}
	hash := cryptox.FingerprintToken(presented)

	now := time.Now()
	old, err := s.Store.Tokens().GetTokenByRefreshHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}
	if old.ClientID != client.ID {
		return nil, ErrInvalidGrant
	}
	if old.RevokedAt != nil {
		l.Warn("revoked refresh token presented, revoking client tokens",
			"client_id", client.ID, "user_id", old.UserID)
		if err := s.Store.Tokens().RevokeUserClientTokens(ctx, old.UserID, old.ClientID, now); err != nil {
			l.Error("failed to revoke client tokens", "error", err)
		}
		return nil, ErrInvalidGrant
	}
	if !old.RefreshActive(now) {
		return nil, ErrInvalidGrant
	}

	scope := old.Scope
	if requested := NormalizeScopes(req.Scope); len(requested) > 0 {
		granted := strings.Fields(old.Scope)
		for _, sc := range requested {
			if !slices.Contains(granted, sc) {
				return nil, ErrInvalidScope
			}
		}
		scope = strings.Join(requested, " ")
	}

	user, err := s.Store.Users().GetUserByID(ctx, old.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	tok, pair, err := s.mint(ctx, mintParams{
		user:      user,
		client:    client,
		scope:     scope,
		sessionID: old.SessionID,
		amr:       old.AMR,
		authTime:  old.AuthTime,
	})
	if err != nil {
		return nil, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Tokens().RevokeByRefreshHash(ctx, hash, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidGrant
			}
			return err
		}
		return tx.Tokens().CreateToken(ctx, tok)
	})
	if err != nil {
		return nil, err
	}

	l.Info("refresh token rotated", "client_id", client.ID, "user_id", user.ID)
	return pair, nil
}

// Introspect reports whether token is a live access or refresh token. The
// caller must already have authenticated as a client.
func (s *TokenService) Introspect(ctx context.Context, token string) (Introspection, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Introspection{}, nil
	}

	now := time.Now()
	hash := cryptox.FingerprintToken(token)

	t, err := s.Store.Tokens().GetTokenByAccessHash(ctx, hash)
	switch {
	case err == nil:
		if !t.AccessActive(now) {
			return Introspection{}, nil
		}
		return introspection(t, t.AccessExpiresAt), nil
	case !errors.Is(err, store.ErrNotFound):
		return Introspection{}, err
	}

	t, err = s.Store.Tokens().GetTokenByRefreshHash(ctx, hash)
	switch {
	case err == nil:
		if !t.RefreshActive(now) {
			return Introspection{}, nil
		}
		return introspection(t, t.RefreshExpiresAt), nil
	case errors.Is(err, store.ErrNotFound):
		return Introspection{}, nil
	default:
		return Introspection{}, err
	}
}

func introspection(t domain.Token, exp time.Time) Introspection {
	return Introspection{
		Active:    true,
		Scope:     t.Scope,
		ClientID:  t.ClientID,
		Subject:   t.UserID,
		ExpiresAt: exp.Unix(),
		IssuedAt:  t.CreatedAt.Unix(),
		TokenType: t.TokenType,
	}
}

// UserInfo resolves a bearer access token to the claims its scopes allow:
// profile unlocks name and preferred_username, email unlocks email and
// email_verified, tenant unlocks tenant_id.
func (s *TokenService) UserInfo(ctx context.Context, bearer string) (UserInfo, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return UserInfo{}, ErrInvalidToken
	}

	if _, err := s.KeyManager.Verify(bearer, jwtx.TokenUseAccess); err != nil {
		return UserInfo{}, ErrInvalidToken
	}

	t, err := s.Store.Tokens().GetTokenByAccessHash(ctx, cryptox.FingerprintToken(bearer))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UserInfo{}, ErrInvalidToken
		}
		return UserInfo{}, err
	}
	if !t.AccessActive(time.Now()) {
		return UserInfo{}, ErrInvalidToken
	}

	u, err := s.Store.Users().GetUserByID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UserInfo{}, ErrInvalidToken
		}
		return UserInfo{}, err
	}

	scopes := strings.Fields(t.Scope)
	info := UserInfo{Subject: u.ID}
	if slices.Contains(scopes, ScopeProfile) {
		info.Name = u.Name
		info.PreferredUsername = u.Email
	}
	if slices.Contains(scopes, ScopeEmail) {
		verified := u.EmailVerified
		info.Email = u.Email
		info.EmailVerified = &verified
	}
	if slices.Contains(scopes, ScopeTenant) {
		info.TenantID = u.TenantID
	}
	return info, nil
}

// Revoke implements RFC 7009: the pair holding token is revoked, and an
// unknown token is not an error.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return s.Store.Tokens().RevokeByHash(ctx, cryptox.FingerprintToken(token), time.Now())
}

type mintParams struct {
	user      domain.User
	client    domain.Client
	scope     string
	sessionID string
	amr       []string
	authTime  time.Time
	nonce     string
}

// mint signs a new token set and returns the row to persist alongside it.
// A refresh token is only issued to clients allowed the refresh grant.
func (s *TokenService) mint(ctx context.Context, p mintParams) (domain.Token, *domain.TokenPair, error) {
	now := time.Now()
	accessTTL := orDefault(s.AccessTTL, jwtx.DefaultAccessTokenTTL)

	sessionID := p.sessionID
	if sessionID == "" {
		sessionID = idx.New().String()
	}

	access, err := s.KeyManager.SignToken(ctx, jwtx.NewAccessClaims(p.user.ID, p.client.ID, p.scope, sessionID, p.amr), accessTTL)
	if err != nil {
		return domain.Token{}, nil, err
	}

	tok := domain.Token{
		ID:               idx.New().String(),
		AccessTokenHash:  cryptox.FingerprintToken(access),
		UserID:           p.user.ID,
		ClientID:         p.client.ID,
		Scope:            p.scope,
		TokenType:        domain.TokenTypeBearer,
		SessionID:        sessionID,
		AMR:              p.amr,
		AuthTime:         p.authTime,
		AccessExpiresAt:  now.Add(accessTTL),
		RefreshExpiresAt: now.Add(accessTTL),
		CreatedAt:        now,
	}
	pair := &domain.TokenPair{
		AccessToken: access,
		TokenType:   domain.TokenTypeBearer,
		ExpiresIn:   accessTTL,
		Scope:       p.scope,
	}

	if p.client.AllowsGrant(domain.GrantTypeRefreshToken) {
		refresh, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return domain.Token{}, nil, err
		}
		tok.RefreshTokenHash = cryptox.FingerprintToken(refresh)
		tok.RefreshExpiresAt = now.Add(orDefault(s.RefreshTTL, jwtx.DefaultRefreshTokenTTL))
		pair.RefreshToken = refresh
	}

	if slices.Contains(strings.Fields(p.scope), ScopeOpenID) {
		id, err := s.KeyManager.SignToken(ctx, jwtx.NewIDClaims(jwtx.IDTokenParams{
			Subject:           p.user.ID,
			ClientID:          p.client.ID,
			Nonce:             p.nonce,
			AuthTime:          p.authTime,
			Name:              p.user.Name,
			PreferredUsername: p.user.Email,
			Email:             p.user.Email,
			EmailVerified:     p.user.EmailVerified,
			AMR:               p.amr,
		}), orDefault(s.IDTokenTTL, jwtx.DefaultIDTokenTTL))
		if err != nil {
			return domain.Token{}, nil, err
		}
		pair.IDToken = id
	}

	return tok, pair, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// RevokeForClient is Revoke for a back-channel caller: a token issued to
// another client is treated as unknown and left alone (RFC 7009 2.1).
func (s *TokenService) RevokeForClient(ctx context.Context, clientID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	hash := cryptox.FingerprintToken(token)

	t, err := s.Store.Tokens().GetTokenByAccessHash(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		t, err = s.Store.Tokens().GetTokenByRefreshHash(ctx, hash)
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	}

	if t.ClientID != clientID {
		slogx.FromContext(ctx).Warn("revocation of another client's token ignored", "client_id", clientID)
		return nil
	}
	return s.Store.Tokens().RevokeByHash(ctx, hash, time.Now())
}
