package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"golang.org/x/oauth2"
)

// userInfo fetches the userinfo document with the provider access token.
func (p *Provider) userInfo(ctx context.Context, tok *oauth2.Token) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrUserInfo, resp.Status)
	}

	info := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUserInfo, err)
	}
	return info, nil
}

// identityFromClaims reads an identity out of id_token or userinfo claims.
// Providers disagree on names, so several are tried in order.
func identityFromClaims(provider string, claims map[string]any) domain.Identity {
	id := domain.Identity{
		Provider: provider,
		Subject:  firstString(claims, "sub"),
		Name:     firstString(claims, "name"),
		TenantID: firstString(claims, "tid"),
	}

	for _, key := range []string{"email", "preferred_username", "upn"} {
		if v := firstString(claims, key); strings.Contains(v, "@") {
			id.Email = strings.ToLower(v)
			break
		}
	}

	if id.Name == "" {
		id.Name = strings.TrimSpace(firstString(claims, "given_name") + " " + firstString(claims, "family_name"))
	}

	if v, ok := claims["email_verified"].(bool); ok {
		id.EmailVerified = &v
	}
	return id
}

// mergeIdentity fills the gaps of primary from secondary. The subject of
// primary wins when both carry one.
func mergeIdentity(primary, secondary domain.Identity) domain.Identity {
	if primary.Subject == "" {
		primary.Subject = secondary.Subject
	}
	if primary.Email == "" {
		primary.Email = secondary.Email
		primary.EmailVerified = secondary.EmailVerified
	}
	if primary.Name == "" {
		primary.Name = secondary.Name
	}
	if primary.TenantID == "" {
		primary.TenantID = secondary.TenantID
	}
	return primary
}

func firstString(claims map[string]any, key string) string {
	v, _ := claims[key].(string)
	return strings.TrimSpace(v)
}

func expandIssuer(issuer string, claims map[string]any) string {
	return strings.ReplaceAll(issuer, "{tenantid}", firstString(claims, "tid"))
}
