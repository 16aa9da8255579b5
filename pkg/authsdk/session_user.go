package authsdk

import (
	"context"
	"net/http"
)

// GetUserInfo retrieves the userinfo document for the session's user.
// Which claims are present depends on the granted scopes.
func (s *Session) GetUserInfo(ctx context.Context) (*UserInfoResponse, error) {
	return decodeAs[UserInfoResponse](s.send(ctx, http.MethodGet, "/oauth/userinfo", nil))
}
