package sqlite

import (
	"errors"
	"fmt"

	"github.com/aussiebroadwan/maturity/internal/auth/store/drivers/sqlite/migrations"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrDirtySchema means an earlier migration failed halfway. The schema has
// to be repaired by hand and forced to a version before the service starts.
var ErrDirtySchema = errors.New("sqlite: schema is dirty")

// migrator builds a migrate instance over the embedded migrations. It is
// never closed, since closing it would close the store's pool with it.
func (s *Store) migrator() (*migrate.Migrate, error) {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrate driver: %w", err)
	}
	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	return migrate.NewWithInstance("iofs", source, "sqlite", driver)
}

// ApplyMigrations brings the schema up to the newest embedded migration.
func (s *Store) ApplyMigrations() error {
	m, err := s.migrator()
	if err != nil {
		return err
	}

	switch _, dirty, err := m.Version(); {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return fmt.Errorf("migrate version: %w", err)
	case dirty:
		return ErrDirtySchema
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version, zero when none ran.
func (s *Store) SchemaVersion() (uint, error) {
	m, err := s.migrator()
	if err != nil {
		return 0, err
	}

	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, err
	case dirty:
		return v, ErrDirtySchema
	}
	return v, nil
}
