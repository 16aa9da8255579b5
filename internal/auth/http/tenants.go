package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// TenantsHandler serves the enterprise rollout endpoints of a tenant.
type TenantsHandler struct {
	ProvisioningService *service.ProvisioningService
}

// HandleAdminConsentURL godoc
//
//	@Summary		Get the admin consent link
//	@Description	Returns the identity provider URL a directory administrator opens to approve the
//	@Description	application for their whole organisation.
//	@Tags			Tenants
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Tenant ID"
//	@Success		200	{object}	authsdk.AdminConsentURLResponse
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		403	{object}	authsdk.ErrorResponse
//	@Failure		404	{object}	authsdk.ErrorResponse	"Unknown tenant"
//	@Router			/api/tenants/{id}/admin-consent/url [get]
func (h *TenantsHandler) HandleAdminConsentURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.ProvisioningService.AdminConsentURL(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTenantError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.AdminConsentURLResponse{URL: u})
}

// HandleAdminConsentStatus godoc
//
//	@Summary		Get admin consent status
//	@Tags			Tenants
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Tenant ID"
//	@Success		200	{object}	authsdk.AdminConsentStatus
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		403	{object}	authsdk.ErrorResponse
//	@Failure		404	{object}	authsdk.ErrorResponse	"Unknown tenant"
//	@Router			/api/tenants/{id}/admin-consent [get]
func (h *TenantsHandler) HandleAdminConsentStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.ProvisioningService.AdminConsentStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTenantError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, adminConsentStatus(st))
}

// HandleMarkAdminConsent godoc
//
//	@Summary		Record admin consent
//	@Description	Marks the tenant's admin consent as granted. Marking twice keeps the first grant time.
//	@Tags			Tenants
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Tenant ID"
//	@Success		200	{object}	authsdk.AdminConsentStatus
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		403	{object}	authsdk.ErrorResponse
//	@Failure		404	{object}	authsdk.ErrorResponse	"Unknown tenant"
//	@Router			/api/tenants/{id}/admin-consent [post]
func (h *TenantsHandler) HandleMarkAdminConsent(w http.ResponseWriter, r *http.Request) {
	st, err := h.ProvisioningService.MarkAdminConsentGranted(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTenantError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, adminConsentStatus(st))
}

// HandleListUsers godoc
//
//	@Summary		List tenant users
//	@Tags			Tenants
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Tenant ID"
//	@Success		200	{array}		authsdk.TenantUserInfo
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		403	{object}	authsdk.ErrorResponse
//	@Failure		404	{object}	authsdk.ErrorResponse	"Unknown tenant"
//	@Router			/api/tenants/{id}/users [get]
func (h *TenantsHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.ProvisioningService.ListTenantUsers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTenantError(w, r, err)
		return
	}

	out := make([]authsdk.TenantUserInfo, len(users))
	for i, u := range users {
		out[i] = authsdk.TenantUserInfo{
			ID:            u.ID,
			Email:         u.Email,
			Name:          u.Name,
			Role:          string(u.Role),
			EmailVerified: u.EmailVerified,
			Provider:      u.Provider,
			CreatedAt:     u.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func adminConsentStatus(st service.AdminConsentStatus) authsdk.AdminConsentStatus {
	out := authsdk.AdminConsentStatus{TenantID: st.TenantID, Granted: st.Granted}
	if st.GrantedAt != nil {
		s := st.GrantedAt.UTC().Format(time.RFC3339)
		out.GrantedAt = &s
	}
	return out
}

func writeTenantError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrTenantNotFound):
		httpx.WriteJSON(w, http.StatusNotFound, authsdk.ErrorResponse{
			Error:            "tenant_not_found",
			ErrorDescription: "Tenant not found",
		})
	case errors.Is(err, service.ErrUnknownProvider):
		httpx.WriteJSON(w, http.StatusNotImplemented, authsdk.ErrorResponse{
			Error:            "admin_consent_unavailable",
			ErrorDescription: "No identity provider supports admin consent",
		})
	default:
		slogx.FromContext(r.Context()).Error("tenant request failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
}
