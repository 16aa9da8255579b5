package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/maturity/pkg/authsdk"
	"github.com/aussiebroadwan/maturity/pkg/httpx"
)

// pinger reports whether the database answers.
type pinger interface {
	Ping(ctx context.Context) error
}

// signerState reports whether an active signing key is loaded.
type signerState interface {
	IsReady() bool
}

// LivezHandler godoc
//
//	@Summary		Liveness probe
//	@Description	Always 200 while the process is serving requests. Reports uptime and build version.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get]
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
		})
	}
}

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Checks the database and the active signing key. Without a signing key no token can be
//	@Description	issued, so the service reports degraded and load balancers should route elsewhere.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"service not ready"
//	@Router			/readyz [get]
func ReadyzHandler(startTime time.Time, version string, db pinger, signer signerState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
			Checks:  &authsdk.HealthChecks{Database: "ok", Signer: "ok"},
		}
		code := http.StatusOK

		if err := db.Ping(ctx); err != nil {
			resp.Checks.Database = "error: " + err.Error()
			resp.Status, code = "degraded", http.StatusServiceUnavailable
		}
		if !signer.IsReady() {
			resp.Checks.Signer = "error: no active signing key"
			resp.Status, code = "degraded", http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, resp)
	}
}
