package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// CreateClient registers a relying party. For confidential clients the
// response carries the only copy of the secret.
func (s *Session) CreateClient(ctx context.Context, req CreateClientRequest) (*CreateClientResponse, error) {
	resp, err := s.send(ctx, http.MethodPost, "/api/clients", req, ScopeAdmin)
	if err != nil {
		return nil, err
	}

	var out CreateClientResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListClients lists registered relying parties.
func (s *Session) ListClients(ctx context.Context) (*ListClientsResponse, error) {
	return decodeAs[ListClientsResponse](s.send(ctx, http.MethodGet, "/api/clients", nil, ScopeAdmin))
}

// DeleteClient removes a client with every code, token and consent issued
// for it.
func (s *Session) DeleteClient(ctx context.Context, clientID string) error {
	resp, err := s.send(ctx, http.MethodDelete, "/api/clients/"+url.PathEscape(clientID), nil, ScopeAdmin)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// RotateKey forces a signing key rotation.
func (s *Session) RotateKey(ctx context.Context) (*RotateKeyResponse, error) {
	return decodeAs[RotateKeyResponse](s.send(ctx, http.MethodPost, "/api/keys/rotate", nil, ScopeAdmin))
}

// ListKeys lists the retained signing keys, newest first.
func (s *Session) ListKeys(ctx context.Context) ([]SigningKeyInfo, error) {
	resp, err := s.send(ctx, http.MethodGet, "/api/keys", nil, ScopeAdmin)
	if err != nil {
		return nil, err
	}

	var out []SigningKeyInfo
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAdminConsentURL returns the identity provider URL a tenant
// administrator opens to approve the application organisation-wide.
func (s *Session) GetAdminConsentURL(ctx context.Context, tenantID string) (*AdminConsentURLResponse, error) {
	return decodeAs[AdminConsentURLResponse](s.send(ctx, http.MethodGet, "/api/tenants/"+url.PathEscape(tenantID)+"/admin-consent/url", nil, ScopeAdmin))
}

// GetAdminConsentStatus reports whether the tenant's admin consent is recorded.
func (s *Session) GetAdminConsentStatus(ctx context.Context, tenantID string) (*AdminConsentStatus, error) {
	return decodeAs[AdminConsentStatus](s.send(ctx, http.MethodGet, "/api/tenants/"+url.PathEscape(tenantID)+"/admin-consent", nil, ScopeAdmin))
}

// MarkAdminConsentGranted records that the tenant administrator approved
// the application at the identity provider.
func (s *Session) MarkAdminConsentGranted(ctx context.Context, tenantID string) (*AdminConsentStatus, error) {
	return decodeAs[AdminConsentStatus](s.send(ctx, http.MethodPost, "/api/tenants/"+url.PathEscape(tenantID)+"/admin-consent", nil, ScopeAdmin))
}

// ListTenantUsers lists the users of a tenant.
func (s *Session) ListTenantUsers(ctx context.Context, tenantID string) ([]TenantUserInfo, error) {
	resp, err := s.send(ctx, http.MethodGet, "/api/tenants/"+url.PathEscape(tenantID)+"/users", nil, ScopeAdmin)
	if err != nil {
		return nil, err
	}

	var out []TenantUserInfo
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}
