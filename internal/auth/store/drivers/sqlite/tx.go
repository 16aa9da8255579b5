package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/maturity/internal/auth/store"
)

var (
	errNestedTx  = errors.New("sqlite: transaction already open, use WithTx for a savepoint")
	errMigrateTx = errors.New("sqlite: migrations cannot run inside a transaction")
)

// repos hands out repositories bound to one handle: the pool or an open
// transaction.
type repos struct {
	db dbtx
}

func (r repos) Users() store.Users                           { return &usersRepo{db: r.db} }
func (r repos) Clients() store.Clients                       { return &clientsRepo{db: r.db} }
func (r repos) AuthorizationCodes() store.AuthorizationCodes { return &authorizationCodesRepo{db: r.db} }
func (r repos) Tokens() store.Tokens                         { return &tokensRepo{db: r.db} }
func (r repos) Consents() store.Consents                     { return &consentsRepo{db: r.db} }
func (r repos) SigningKeys() store.SigningKeys               { return &signingKeysRepo{db: r.db} }
func (r repos) SsoStates() store.SsoStates                   { return &ssoStatesRepo{db: r.db} }
func (r repos) Tenants() store.Tenants                       { return &tenantsRepo{db: r.db} }
func (r repos) PendingAuthorizations() store.PendingAuthorizations {
	return &pendingAuthorizationsRepo{db: r.db}
}

// txStore is a store.Tx over an open transaction. A txStore created by a
// nested WithTx wraps a savepoint instead, and its Commit and Rollback
// release or undo only that savepoint.
type txStore struct {
	repos
	tx        *sql.Tx
	savepoint string
	depth     int
	done      bool
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{repos: repos{db: tx}, tx: tx}
}

func (t *txStore) Commit() error {
	if t.savepoint == "" {
		return t.tx.Commit()
	}
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	_, err := t.tx.Exec("RELEASE " + t.savepoint)
	return err
}

func (t *txStore) Rollback() error {
	if t.savepoint == "" {
		return t.tx.Rollback()
	}
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	if _, err := t.tx.Exec("ROLLBACK TO " + t.savepoint); err != nil {
		return err
	}
	_, err := t.tx.Exec("RELEASE " + t.savepoint)
	return err
}

// Close leaves the transaction to Commit or Rollback; the pool stays open.
func (t *txStore) Close() error { return nil }

// Ping succeeds while the transaction holds its connection.
func (t *txStore) Ping(context.Context) error { return nil }

func (t *txStore) ApplyMigrations() error { return errMigrateTx }

func (t *txStore) Tx(context.Context) (store.Tx, error) { return nil, errNestedTx }

// WithTx runs fn inside a savepoint of the open transaction, so a service
// that already holds a transaction can call one that starts its own.
func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	name := fmt.Sprintf("sp_%d", t.depth+1)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}
	inner := &txStore{repos: t.repos, tx: t.tx, savepoint: name, depth: t.depth + 1}
	return runTx(inner, fn)
}

// runTx commits tx when fn succeeds and rolls it back otherwise, including
// when fn panics.
func runTx(tx store.Tx, fn func(store.Tx) error) error {
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return tx.Commit()
}
