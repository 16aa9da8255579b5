package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/aussiebroadwan/maturity/pkg/idx"
	"github.com/aussiebroadwan/maturity/pkg/slogx"
)

var ErrConsentNotFound = errors.New("consent not found")

// NormalizeScopes splits a space-delimited scope string into a sorted list
// without duplicates. "email openid email" and "openid email" normalise to
// the same list, and so to the same consent.
func NormalizeScopes(scope string) []string {
	scopes := dedupe(strings.Fields(scope))
	slices.Sort(scopes)
	return scopes
}

// dedupe drops empty and repeated entries, keeping first-seen order.
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ScopeHash is the lookup key of a normalised scope list: the fingerprint
// of the space-joined scopes.
func ScopeHash(scopes []string) string {
	return cryptox.FingerprintToken(strings.Join(scopes, " "))
}

// ConsentService records which user approved which client for which scopes.
type ConsentService struct {
	Store store.Store
}

// HasConsent reports whether an active consent exists for the triple, and
// marks it used when it does.
func (s *ConsentService) HasConsent(ctx context.Context, userID, clientID, scopeHash string) (bool, error) {
	c, err := s.Store.Consents().GetActiveConsent(ctx, userID, clientID, scopeHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := s.Store.Consents().TouchConsent(ctx, c.ID, time.Now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		slogx.FromContext(ctx).Warn("failed to touch consent", "error", err, "consent_id", c.ID)
	}
	return true, nil
}

// Grant records approval of scopes. Approving the same scope set again
// refreshes the existing consent rather than adding a second one.
func (s *ConsentService) Grant(ctx context.Context, userID, clientID string, scopes []string) (domain.UserConsent, error) {
	scopes = NormalizeScopes(strings.Join(scopes, " "))
	now := time.Now()

	c, err := s.Store.Consents().UpsertConsent(ctx, domain.UserConsent{
		ID:         idx.New().String(),
		UserID:     userID,
		ClientID:   clientID,
		Scopes:     scopes,
		ScopeHash:  ScopeHash(scopes),
		CreatedAt:  now,
		LastUsedAt: now,
	})
	if err != nil {
		return domain.UserConsent{}, err
	}

	slogx.FromContext(ctx).Info("consent granted",
		"user_id", userID, "client_id", clientID, "consent_id", c.ID)
	return c, nil
}

// Revoke withdraws one of the user's consents and every token the client
// holds for the user, in one transaction. Another user's consent id is
// reported as ErrConsentNotFound.
func (s *ConsentService) Revoke(ctx context.Context, userID, consentID string) error {
	now := time.Now()

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		c, err := tx.Consents().RevokeConsent(ctx, userID, consentID, now)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrConsentNotFound
			}
			return err
		}
		return tx.Tokens().RevokeUserClientTokens(ctx, userID, c.ClientID, now)
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("consent revoked", "user_id", userID, "consent_id", consentID)
	return nil
}

// List returns the user's active consents with client names.
func (s *ConsentService) List(ctx context.Context, userID string) ([]domain.UserConsent, error) {
	return s.Store.Consents().ListActiveConsents(ctx, userID)
}
