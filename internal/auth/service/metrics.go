package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authorizationCodesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_authorization_codes_issued_total",
		Help: "Authorization codes issued",
	})

	tokenGrants = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_grants_total",
			Help: "Token endpoint grants by grant type and outcome",
		},
		[]string{"grant_type", "outcome"},
	)

	keyRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_signing_key_rotations_total",
		Help: "Signing keys generated and activated",
	})

	federationLogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_federation_logins_total",
			Help: "Completed federated logins by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	provisioningOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_provisioning_total",
			Help: "Federated identities resolved to local users, by outcome",
		},
		[]string{"outcome"},
	)

	jobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_background_job_runs_total",
			Help: "Background job runs by job and outcome",
		},
		[]string{"job", "outcome"},
	)
)

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
