// Package sqlite registers the SQLite run store backend, built on
// mattn/go-sqlite3 (cgo).
//
//	import _ "github.com/ncobase/runner/data/sqlite"
//
// SQLite serialises writers, so the pool defaults to one open connection and
// lease writes never see SQLITE_BUSY from inside the process.
//
//	file:runner.db?_busy_timeout=5000&_journal_mode=WAL
//	file::memory:?cache=shared
package sqlite

import (
	"context"
	"database/sql"

	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/data"

	_ "github.com/mattn/go-sqlite3"
)

type driver struct{}

func (driver) Name() string          { return "sqlite" }
func (driver) Dialect() data.Dialect { return data.DialectSQLite }

func (driver) Open(ctx context.Context, cfg *config.Database) (*sql.DB, error) {
	return data.OpenPool(ctx, "sqlite3", cfg, data.Pool{MaxOpen: 1, MaxIdle: 1})
}

func init() {
	data.Register(driver{})
}
