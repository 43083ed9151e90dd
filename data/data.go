// Package data owns the run store connection and carries transactions
// through context.Context.
package data

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/ncobase/runner/config"
)

type txKey struct{}

// ErrClosed is returned once the data layer has been closed.
var ErrClosed = errors.New("data layer is closed")

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Data owns the run store connection pool.
type Data struct {
	db      *sql.DB
	dialect Dialect

	mu     sync.RWMutex
	closed bool
}

// New opens the configured database and returns the data layer with its
// cleanup function.
func New(ctx context.Context, cfg *config.Data) (*Data, func(), error) {
	if cfg == nil || cfg.Database == nil {
		return nil, nil, errors.New("data: database config is nil")
	}

	driver, err := Lookup(cfg.Database.Driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := driver.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	d := NewWithDB(db, driver.Dialect())
	return d, func() { _ = d.Close() }, nil
}

// NewWithDB wraps an already opened database handle.
func NewWithDB(db *sql.DB, dialect Dialect) *Data {
	return &Data{db: db, dialect: dialect}
}

// DB returns the underlying database handle.
func (d *Data) DB() *sql.DB {
	return d.db
}

// Dialect returns the SQL dialect of the connection.
func (d *Data) Dialect() Dialect {
	return d.dialect
}

// Rebind rewrites placeholders for the current dialect.
func (d *Data) Rebind(query string) string {
	return d.dialect.Rebind(query)
}

// Conn returns the transaction carried by ctx, or the database handle.
func (d *Data) Conn(ctx context.Context) Querier {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return d.db
}

// Ping verifies the database is reachable.
func (d *Data) Ping(ctx context.Context) error {
	if d.isClosed() {
		return ErrClosed
	}
	return d.db.PingContext(ctx)
}

// Close closes the database. Calling it more than once is a no-op.
func (d *Data) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

func (d *Data) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}
