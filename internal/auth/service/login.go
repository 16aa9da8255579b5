package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/aussiebroadwan/maturity/pkg/idx"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	ErrTOTPRequired       = errors.New("totp code required")
	ErrInvalidTOTPCode    = errors.New("invalid TOTP code")
	ErrTOTPNotEnrolled    = errors.New("TOTP not enrolled")
	ErrTOTPAlreadyEnabled = errors.New("TOTP already enabled for this user")
)

// Session is an authenticated browser session, carried in a signed cookie.
type Session struct {
	UserID    string
	SessionID string
	AMR       []string
	AuthTime  time.Time
}

// LoginService authenticates local users and issues browser sessions.
type LoginService struct {
	Store      store.Store
	KeyManager *jwtx.KeyManager
	Issuer     string // TOTP issuer label shown in authenticator apps
	SessionTTL time.Duration
}

// Authenticate checks email and password and, for users who confirmed a
// TOTP authenticator, the current code. Unknown emails, federated-only
// accounts and wrong passwords are all ErrInvalidCredentials, and cost the
// same argon2 work.
func (s *LoginService) Authenticate(ctx context.Context, email, password, code string) (domain.User, Session, error) {
	l := slogx.FromContext(ctx)

	u, err := s.Store.Users().GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			cryptox.BurnVerification(password)
			return domain.User{}, Session{}, ErrInvalidCredentials
		}
		return domain.User{}, Session{}, err
	}

	if u.PasswordHash == "" {
		cryptox.BurnVerification(password)
		return domain.User{}, Session{}, ErrInvalidCredentials
	}
	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		l.Info("password verification failed", "user_id", u.ID)
		return domain.User{}, Session{}, ErrInvalidCredentials
	}

	amr := []string{jwtx.AMRPassword}
	if u.HasTOTP() {
		code = strings.TrimSpace(code)
		if code == "" {
			return domain.User{}, Session{}, ErrTOTPRequired
		}
		if !totp.Validate(code, u.TOTPSecret) {
			l.Info("totp verification failed", "user_id", u.ID)
			return domain.User{}, Session{}, ErrInvalidTOTPCode
		}
		amr = append(amr, jwtx.AMROTP)
	}

	if cryptox.NeedsRehash(u.PasswordHash) {
		s.rehashPassword(ctx, u.ID, password)
	}

	return u, NewSession(u.ID, amr...), nil
}

// rehashPassword upgrades a hash made with older argon2 parameters. Failure
// only costs another rehash attempt at the next login.
func (s *LoginService) rehashPassword(ctx context.Context, userID, password string) {
	l := slogx.FromContext(ctx)

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		l.Warn("password rehash failed", "user_id", userID, "err", err)
		return
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, userID, hash); err != nil {
		l.Warn("password rehash failed", "user_id", userID, "err", err)
		return
	}
	l.Info("password hash upgraded", "user_id", userID)
}

// NewSession starts a session for userID authenticated by amr.
func NewSession(userID string, amr ...string) Session {
	return Session{
		UserID:    userID,
		SessionID: idx.New().String(),
		AMR:       amr,
		AuthTime:  time.Now(),
	}
}

// IssueSession signs the session cookie value.
func (s *LoginService) IssueSession(ctx context.Context, sess Session) (string, error) {
	return s.KeyManager.SignToken(ctx,
		jwtx.NewSessionClaims(sess.UserID, sess.SessionID, sess.AMR, sess.AuthTime),
		s.SessionLifetime(),
	)
}

// VerifySession parses a session cookie value. Access and ID tokens are
// rejected by their token_use.
func (s *LoginService) VerifySession(token string) (Session, error) {
	c, err := s.KeyManager.Verify(token, jwtx.TokenUseSession, jwtx.AudienceSession)
	if err != nil {
		return Session{}, err
	}

	sess := Session{UserID: c.Subject, SessionID: c.SID, AMR: c.AMR}
	if c.AuthTime != nil {
		sess.AuthTime = c.AuthTime.Time
	}
	return sess, nil
}

// SessionLifetime is how long a session cookie is valid.
func (s *LoginService) SessionLifetime() time.Duration {
	return orDefault(s.SessionTTL, jwtx.DefaultSessionTTL)
}

// EnrollTOTP generates a TOTP secret for the user. The secret only
// protects logins once ConfirmTOTP has seen a valid code from it.
func (s *LoginService) EnrollTOTP(ctx context.Context, userID string) (domain.TOTPEnrollment, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return domain.TOTPEnrollment{}, err
	}
	if u.HasTOTP() {
		return domain.TOTPEnrollment{}, ErrTOTPAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: u.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	if err := s.Store.Users().SetTOTPSecret(ctx, u.ID, key.Secret()); err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("failed to store TOTP secret: %w", err)
	}

	slogx.FromContext(ctx).Info("totp enrollment started", "user_id", u.ID)
	return domain.TOTPEnrollment{
		Secret:  key.Secret(),
		URL:     key.URL(),
		Issuer:  s.Issuer,
		Account: u.Email,
	}, nil
}

// ConfirmTOTP verifies a code from the enrolled secret and turns TOTP on.
func (s *LoginService) ConfirmTOTP(ctx context.Context, userID, code string) error {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.HasTOTP() {
		return ErrTOTPAlreadyEnabled
	}
	if u.TOTPSecret == "" {
		return ErrTOTPNotEnrolled
	}
	if !totp.Validate(strings.TrimSpace(code), u.TOTPSecret) {
		return ErrInvalidTOTPCode
	}

	if err := s.Store.Users().ConfirmTOTP(ctx, u.ID); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("totp enabled", "user_id", u.ID)
	return nil
}
