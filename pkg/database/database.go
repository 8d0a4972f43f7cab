// Package database wraps a pgx-backed database/sql pool with the
// transaction helper the order repository's event aspect relies on.
package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Database wraps a *sql.DB opened against the pgx stdlib driver.
type Database struct {
	db *sql.DB
}

// New opens a connection pool against dbURL and verifies connectivity.
func New(ctx context.Context, dbURL string) (*Database, error) {
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Database{db: db}, nil
}

// DB returns the underlying *sql.DB for read-only queries outside a
// transaction.
func (d *Database) DB() *sql.DB {
	return d.db
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity, satisfying httpx.HealthChecker.
func (d *Database) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}

// WithTx runs fn inside a database transaction: commits on a nil return,
// rolls back otherwise (including on panic, which it re-panics after
// rolling back). This is the boundary the repository event aspect
// (cqrs.InterceptMutation) composes with via pkg/txn.Scope — the
// transaction and the event-publish scope commit/rollback together.
func (d *Database) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
