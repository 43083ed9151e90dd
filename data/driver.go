package data

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/ncobase/runner/config"
)

// Driver opens a run store database. Backends register one from init and
// are selected by the data.database.driver setting.
type Driver interface {
	// Name is the value of data.database.driver that selects this backend.
	Name() string
	Dialect() Dialect
	Open(ctx context.Context, cfg *config.Database) (*sql.DB, error)
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available by its name. It panics on a nil driver,
// an empty name or a second registration under the same name.
func Register(d Driver) {
	if d == nil {
		panic("data: Register driver is nil")
	}
	name := d.Name()
	if name == "" {
		panic("data: Register driver name is empty")
	}

	driversMu.Lock()
	defer driversMu.Unlock()
	if _, dup := drivers[name]; dup {
		panic("data: Register called twice for driver " + name)
	}
	drivers[name] = d
}

// Lookup returns the driver registered under name.
func Lookup(name string) (Driver, error) {
	driversMu.RLock()
	d, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("data: unknown driver %q (forgotten import?)", name)
	}
	return d, nil
}

// Drivers returns the sorted names of the registered drivers.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Pool holds connection pool limits. Zero values leave the database/sql
// defaults in place.
type Pool struct {
	MaxOpen int
	MaxIdle int
}

// OpenPool opens sqlName with cfg.Source, applies the pool limits from cfg
// (falling back to def) and pings the database.
func OpenPool(ctx context.Context, sqlName string, cfg *config.Database, def Pool) (*sql.DB, error) {
	if cfg == nil || cfg.Source == "" {
		return nil, fmt.Errorf("data: %s source is empty", sqlName)
	}

	db, err := sql.Open(sqlName, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("data: open %s: %w", sqlName, err)
	}

	maxOpen, maxIdle := def.MaxOpen, def.MaxIdle
	if cfg.MaxOpenConn > 0 {
		maxOpen = cfg.MaxOpenConn
	}
	if cfg.MaxIdleConn > 0 {
		maxIdle = cfg.MaxIdleConn
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if cfg.ConnMaxLifeTime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifeTime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("data: ping %s: %w", sqlName, err)
	}
	return db, nil
}
