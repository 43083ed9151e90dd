// Package mysql registers the MySQL run store backend, built on
// go-sql-driver/mysql.
//
//	import _ "github.com/ncobase/runner/data/mysql"
//
// Timestamps are stored as integers, so parseTime is not needed:
//
//	runner:secret@tcp(localhost:3306)/runner
package mysql

import (
	"context"
	"database/sql"

	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/data"

	_ "github.com/go-sql-driver/mysql"
)

type driver struct{}

func (driver) Name() string          { return "mysql" }
func (driver) Dialect() data.Dialect { return data.DialectMySQL }

func (driver) Open(ctx context.Context, cfg *config.Database) (*sql.DB, error) {
	return data.OpenPool(ctx, "mysql", cfg, data.Pool{})
}

func init() {
	data.Register(driver{})
}
