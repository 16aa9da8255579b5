package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

// KeyRotationHandler exposes signing key rotation to administrators.
type KeyRotationHandler struct {
	KeyRotationService *service.KeyRotationService
}

// HandleRotate handles POST /api/keys/rotate
//
//	@Summary		Rotate the signing key
//	@Description	Generates a new active signing key. The previous key is retired but stays published
//	@Description	until tokens it signed have expired; keys beyond the retention count are purged.
//	@Tags			Keys
//	@Produce		json
//	@Success		200	{object}	authsdk.RotateKeyResponse
//	@Failure		401	{object}	authsdk.ErrorResponse	"Unauthorized"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Forbidden"
//	@Failure		500	{object}	authsdk.ErrorResponse	"Internal Server Error"
//	@Security		BearerAuth
//	@Router			/api/keys/rotate [post]
func (h *KeyRotationHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	res, err := h.KeyRotationService.RotateKey(ctx)
	if err != nil {
		log.Error("key rotation failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	keys, err := h.KeyRotationService.ListSigningKeys(ctx)
	if err != nil {
		log.Error("failed to list signing keys", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.RotateKeyResponse{
		NewKey: signingKeyInfo(res.Key),
		Keys:   signingKeyInfos(keys),
		Purged: res.Purged,
	})
}

// HandleListKeys handles GET /api/keys
//
//	@Summary		List signing keys
//	@Description	Lists the active key and the retired keys still published in the JWKS.
//	@Tags			Keys
//	@Produce		json
//	@Success		200	{array}		authsdk.SigningKeyInfo
//	@Failure		401	{object}	authsdk.ErrorResponse	"Unauthorized"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Forbidden"
//	@Failure		500	{object}	authsdk.ErrorResponse
//	@Security		BearerAuth
//	@Router			/api/keys [get]
func (h *KeyRotationHandler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.KeyRotationService.ListSigningKeys(r.Context())
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to list signing keys", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, signingKeyInfos(keys))
}

func signingKeyInfo(key domain.SigningKey) authsdk.SigningKeyInfo {
	info := authsdk.SigningKeyInfo{
		Kid:       key.Kid,
		Algorithm: key.Algorithm,
		Active:    key.Active,
		CreatedAt: key.CreatedAt.UTC().Format(time.RFC3339),
	}
	if key.RetiredAt != nil {
		s := key.RetiredAt.UTC().Format(time.RFC3339)
		info.RetiredAt = &s
	}
	return info
}

func signingKeyInfos(keys []domain.SigningKey) []authsdk.SigningKeyInfo {
	out := make([]authsdk.SigningKeyInfo, len(keys))
	for i, key := range keys {
		out[i] = signingKeyInfo(key)
	}
	return out
}
