package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/maturity/internal/auth/service"
	"github.com/aussiebroadwan/maturity/internal/auth/store"
	"github.com/aussiebroadwan/maturity/pkg/cryptox"
	"github.com/aussiebroadwan/maturity/pkg/jwtx"
)

// InitAuthKeys loads the signing keys from the database and makes sure one
// of them is active before the first request is served.
//
// Private keys are stored encrypted under the master key. Every instance
// reads the same key table, so tokens survive restarts and verify on any
// instance; an instance that sees an unknown kid reloads the table.
func InitAuthKeys(
	ctx context.Context,
	cfg Config,
	db store.Store,
	logger *slog.Logger,
) (*jwtx.KeyManager, *service.KeyRotationService, error) {
	if cfg.MasterKeyPath != "" {
		cryptox.SetMasterKeyPath(cfg.MasterKeyPath)
		logger.Info("master key path configured", "path", cfg.MasterKeyPath)
	}

	keyManager, err := jwtx.NewKeyManager(ctx, jwtx.KeyManagerOptions{
		Issuer: cfg.Issuer,
		Store:  store.KeyStore(db),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}

	rotation := &service.KeyRotationService{
		Store:      db,
		KeyManager: keyManager,
		RSABits:    cfg.RSABits,
		Interval:   cfg.KeyRotationInterval,
		Retain:     cfg.KeyRetain,
	}
	keyManager.SetProvisioner(rotation)

	if err := rotation.EnsureActiveKey(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to provision signing key: %w", err)
	}

	logger.Info("signing keys loaded",
		"issuer", cfg.Issuer,
		"published_keys", len(keyManager.PublicJWKS().Keys),
		"rotation_interval", cfg.KeyRotationInterval,
		"retain", cfg.KeyRetain,
	)

	return keyManager, rotation, nil
}
