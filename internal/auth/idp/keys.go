package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aussiebroadwan/maturity/pkg/jwtx"
	"github.com/cenkalti/backoff/v5"
	"github.com/golang-jwt/jwt/v5"
)

var errStatus = errors.New("idp: unexpected status")

// verifyIDToken checks the id_token signature against the provider keys
// and its iss, aud and exp claims.
func (p *Provider) verifyIDToken(ctx context.Context, raw string) (map[string]any, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwtx.AlgorithmRS256}),
		jwt.WithAudience(p.oauth.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(p.leeway),
	)

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, jwtx.ErrMissingKID
		}
		return p.key(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIDToken, err)
	}

	if p.issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != expandIssuer(p.issuer, claims) {
			return nil, fmt.Errorf("%w: issuer %q", ErrInvalidIDToken, iss)
		}
	}

	return claims, nil
}

// key returns the provider key for kid, refetching the JWKS when the kid is
// unknown and the last fetch is old enough.
func (p *Provider) key(ctx context.Context, kid string) (any, error) {
	if pub, err := p.keys.Get(kid); err == nil {
		return pub, nil
	}

	_, err, _ := p.fetches.Do("jwks", func() (any, error) {
		if !p.lastFetch.IsZero() && time.Since(p.lastFetch) < p.refreshInterval {
			return nil, nil
		}
		return nil, p.refreshKeys(ctx)
	})
	if err != nil {
		return nil, err
	}

	pub, err := p.keys.Get(kid)
	if err != nil {
		return nil, fmt.Errorf("%w %q", jwtx.ErrUnknownKID, kid)
	}
	return pub, nil
}

// refreshKeys fetches the provider JWKS, retrying transient failures with
// exponential backoff. Client errors are not retried.
func (p *Provider) refreshKeys(ctx context.Context) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond
	exp.RandomizationFactor = 0.1
	exp.Multiplier = 2

	operation := func() (jwtx.JWKS, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.jwksURL, nil)
		if err != nil {
			return jwtx.JWKS{}, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return jwtx.JWKS{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return jwtx.JWKS{}, fmt.Errorf("%w: %s", errStatus, resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			return jwtx.JWKS{}, backoff.Permanent(fmt.Errorf("%w: %s", errStatus, resp.Status))
		}

		var set jwtx.JWKS
		if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
			return jwtx.JWKS{}, backoff.Permanent(err)
		}
		return set, nil
	}

	set, err := backoff.Retry(ctx, operation, backoff.WithBackOff(exp), backoff.WithMaxTries(3))
	if err != nil {
		return fmt.Errorf("idp: fetch %s keys: %w", p.name, err)
	}

	if err := p.keys.ResetFromJWKS(set); err != nil {
		return fmt.Errorf("idp: load %s keys: %w", p.name, err)
	}
	p.lastFetch = time.Now()
	return nil
}
