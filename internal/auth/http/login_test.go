package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	ctx := t.Context()
	ts := newTestServer(t)
	user := ts.seedUser(t, "ada@example.com", domain.RoleMember, "")

	t.Run("success sets the session cookie", func(t *testing.T) {
		cookie, resp, err := ts.sdk.Login(ctx, authsdk.LoginRequest{Email: "ADA@example.com ", Password: testPassword})
		require.NoError(t, err)
		require.Equal(t, user.ID, resp.UserID)
		require.Empty(t, resp.RedirectURL)

		claims, err := ts.keys.Verify(cookie, jwtx.TokenUseSession, jwtx.AudienceSession)
		require.NoError(t, err)
		require.Equal(t, user.ID, claims.Subject)
		require.Equal(t, []string{jwtx.AMRPassword}, claims.AMR)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := ts.sdk.Login(ctx, authsdk.LoginRequest{Email: "ada@example.com", Password: "wrong"})
		requireOAuthError(t, err, http.StatusUnauthorized, "invalid_credentials")
	})

	t.Run("unknown email looks the same", func(t *testing.T) {
		_, _, err := ts.sdk.Login(ctx, authsdk.LoginRequest{Email: "nobody@example.com", Password: testPassword})
		requireOAuthError(t, err, http.StatusUnauthorized, "invalid_credentials")
	})

	t.Run("missing password", func(t *testing.T) {
		_, _, err := ts.sdk.Login(ctx, authsdk.LoginRequest{Email: "ada@example.com"})
		requireOAuthError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	})

	t.Run("stale pending key still signs in", func(t *testing.T) {
		_, resp, err := ts.sdk.Login(ctx, authsdk.LoginRequest{
			Email:    "ada@example.com",
			Password: testPassword,
			Pending:  "does-not-exist",
		})
		require.NoError(t, err)
		require.Empty(t, resp.RedirectURL)
	})

	t.Run("logout clears the cookie", func(t *testing.T) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/auth/logout", nil)
		require.NoError(t, err)

		resp, err := ts.browser.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		cookie := sessionCookieFrom(resp)
		require.NotNil(t, cookie)
		require.Empty(t, cookie.Value)
		require.True(t, cookie.HttpOnly)
	})
}

func TestTOTPEnrollment(t *testing.T) {
	ctx := t.Context()
	ts := newTestServer(t)
	ts.seedUser(t, "ada@example.com", domain.RoleMember, "")

	cookie, _, err := ts.sdk.Login(ctx, authsdk.LoginRequest{Email: "ada@example.com", Password: testPassword})
	require.NoError(t, err)

	t.Run("confirm before enroll", func(t *testing.T) {
		err := ts.sdk.ConfirmTOTP(ctx, cookie, "123456")
		requireOAuthError(t, err, http.StatusBadRequest, "mfa_not_enrolled")
	})

	enrollment, err := ts.sdk.EnrollTOTP(ctx, cookie)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URL, "otpauth://totp/")
	require.Equal(t, "Maturity", enrollment.Issuer)
	require.Equal(t, "ada@example.com", enrollment.Account)

	t.Run("wrong code", func(t *testing.T) {
		err := ts.sdk.ConfirmTOTP(ctx, cookie, "abcdef")
		requireOAuthError(t, err, http.StatusBadRequest, "invalid_code")
	})

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, ts.sdk.ConfirmTOTP(ctx, cookie, code))

	t.Run("second enrollment is refused", func(t *testing.T) {
		_, err := ts.sdk.EnrollTOTP(ctx, cookie)
		requireOAuthError(t, err, http.StatusBadRequest, "mfa_already_enabled")
	})

	t.Run("login now needs a code", func(t *testing.T) {
		_, _, err := ts.sdk.Login(ctx, authsdk.LoginRequest{Email: "ada@example.com", Password: testPassword})
		requireOAuthError(t, err, http.StatusUnauthorized, "totp_required")

		_, _, err = ts.sdk.Login(ctx, authsdk.LoginRequest{Email: "ada@example.com", Password: testPassword, TOTP: "abcdef"})
		requireOAuthError(t, err, http.StatusUnauthorized, "invalid_totp")

		code, err := totp.GenerateCode(enrollment.Secret, time.Now())
		require.NoError(t, err)
		session, _, err := ts.sdk.Login(ctx, authsdk.LoginRequest{Email: "ada@example.com", Password: testPassword, TOTP: code})
		require.NoError(t, err)

		claims, err := ts.keys.Verify(session, jwtx.TokenUseSession, jwtx.AudienceSession)
		require.NoError(t, err)
		require.Equal(t, []string{jwtx.AMRPassword, jwtx.AMROTP}, claims.AMR)
	})

	t.Run("enrollment requires a session", func(t *testing.T) {
		_, err := ts.sdk.EnrollTOTP(ctx, "")
		requireOAuthError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeLoginRequired)
	})
}

func TestLoginRateLimit(t *testing.T) {
	ts := newTestServer(t)

	body, err := json.Marshal(authsdk.LoginRequest{Email: "nobody@example.com", Password: "wrong"})
	require.NoError(t, err)

	// Every request comes from the same address here
	client := &http.Client{Timeout: 10 * time.Second}

	var limited bool
	for range 10 {
		resp, err := client.Post(ts.URL+"/auth/login", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	require.True(t, limited, "expected the strict login limit to trip")
}
