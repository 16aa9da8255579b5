package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// ClientsHandler handles all client management endpoints.
type ClientsHandler struct {
	ClientService *service.ClientService
}

// HandleCreate handles POST /api/clients
//
//	@Summary		Register a relying party
//	@Description	Registers a client in this service's environment. Confidential clients get a generated
//	@Description	secret that is returned once. Public clients always require PKCE.
//	@Tags			Clients
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.CreateClientRequest		true	"Client registration"
//	@Success		201		{object}	authsdk.CreateClientResponse	"client_id and client_secret (if confidential)"
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Failure		403		{object}	authsdk.ErrorResponse
//	@Failure		500		{object}	authsdk.ErrorResponse
//	@Router			/api/clients [post]
func (h *ClientsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.CreateClientRequest
	if err := httpx.Decode(r, &req); err != nil {
		authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return
	}

	pkce := true
	if req.PKCERequired != nil {
		pkce = *req.PKCERequired
	}

	client, secret, err := h.ClientService.CreateClient(ctx, service.CreateClientParams{
		Name:                   req.Name,
		RedirectURIs:           req.RedirectURIs,
		PostLogoutRedirectURIs: req.PostLogoutRedirectURIs,
		GrantTypes:             req.GrantTypes,
		Confidential:           req.Confidential,
		PKCERequired:           pkce,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			authsdk.ErrInvalidRequest.
				WithDescription("name and at least one absolute redirect_uri are required; grant_types must include authorization_code").
				WriteError(w)
			return
		}
		slogx.FromContext(ctx).Error("failed to create client", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, authsdk.CreateClientResponse{
		ClientID:     client.ID,
		ClientSecret: secret,
	})
}

// HandleList handles GET /api/clients
//
//	@Summary		List relying parties
//	@Description	Returns every registered client, newest first. Protected clients are flagged.
//	@Tags			Clients
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.ListClientsResponse
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		403	{object}	authsdk.ErrorResponse
//	@Failure		500	{object}	authsdk.ErrorResponse
//	@Router			/api/clients [get]
func (h *ClientsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clients, err := h.ClientService.ListClients(ctx)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to list clients", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	out := make([]authsdk.ClientInfo, len(clients))
	for i, c := range clients {
		out[i] = clientInfo(c)
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ListClientsResponse{Clients: out})
}

// HandleDelete handles DELETE /api/clients/{id}
//
//	@Summary		Delete a relying party
//	@Description	Deletes a client with its codes, tokens and consents. Protected clients cannot be deleted.
//	@Tags			Clients
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Client ID"
//	@Success		204	"Client deleted"
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Failure		403	{object}	authsdk.ErrorResponse	"Protected client, or role not allowed"
//	@Failure		404	{object}	authsdk.ErrorResponse
//	@Failure		500	{object}	authsdk.ErrorResponse
//	@Router			/api/clients/{id} [delete]
func (h *ClientsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := r.PathValue("id")

	if err := h.ClientService.DeleteClient(ctx, clientID); err != nil {
		switch {
		case errors.Is(err, service.ErrClientNotFound):
			httpx.WriteJSON(w, http.StatusNotFound, authsdk.ErrorResponse{
				Error:            "client_not_found",
				ErrorDescription: "Client not found",
			})
		case errors.Is(err, service.ErrClientProtected):
			httpx.WriteJSON(w, http.StatusForbidden, authsdk.ErrorResponse{
				Error:            "client_protected",
				ErrorDescription: "Cannot delete protected client",
			})
		default:
			slogx.FromContext(ctx).Error("failed to delete client", "error", err, "client_id", clientID)
			authsdk.ErrServerError.WriteError(w)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func clientInfo(c domain.Client) authsdk.ClientInfo {
	return authsdk.ClientInfo{
		ID:                     c.ID,
		Name:                   c.Name,
		RedirectURIs:           c.RedirectURIs,
		PostLogoutRedirectURIs: c.PostLogoutRedirectURIs,
		GrantTypes:             c.GrantTypes,
		PKCERequired:           c.PKCERequired,
		Confidential:           c.IsConfidential(),
		Protected:              c.Protected,
		CreatedAt:              c.CreatedAt.UTC().Format(time.RFC3339),
	}
}
