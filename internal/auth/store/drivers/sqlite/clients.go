package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/maturity/internal/auth/domain"
)

const clientColumns = `id, name, environment, secret_hash, redirect_uris, post_logout_redirect_uris,
	grant_types, pkce_required, protected, created_at, updated_at`

type clientsRepo struct {
	db dbtx
}

func scanClient(row scanner) (domain.Client, error) {
	var (
		c                     domain.Client
		secretHash            sql.NullString
		redirects, postLogout string
		grantTypes            string
		createdAt, updatedAt  int64
	)
	err := row.Scan(&c.ID, &c.Name, &c.Environment, &secretHash, &redirects, &postLogout,
		&grantTypes, &c.PKCERequired, &c.Protected, &createdAt, &updatedAt)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}

	c.SecretHash = mapNullString(secretHash)
	c.RedirectURIs = splitAndFilter(redirects)
	c.PostLogoutRedirectURIs = splitAndFilter(postLogout)
	c.GrantTypes = splitAndFilter(grantTypes)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func (r *clientsRepo) GetClient(ctx context.Context, id, environment string) (domain.Client, error) {
	return scanClient(r.db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE id = ? AND environment = ?`, id, environment))
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	return scanClient(r.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id))
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Environment, mapStringNull(c.SecretHash),
		joinFields(c.RedirectURIs), joinFields(c.PostLogoutRedirectURIs), joinFields(c.GrantTypes),
		c.PKCERequired, c.Protected, toMillis(c.CreatedAt), toMillis(now),
	)
	return mapConstraint(err)
}

// DeleteClient refuses protected clients by matching nothing.
func (r *clientsRepo) DeleteClient(ctx context.Context, id string) error {
	return requireAffected(r.db.ExecContext(ctx,
		`DELETE FROM clients WHERE id = ? AND protected = 0`, id))
}
