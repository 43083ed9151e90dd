package data

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/ncobase/runner/config"
)

type fakeDriver struct{ name string }

func (d fakeDriver) Name() string     { return d.name }
func (d fakeDriver) Dialect() Dialect { return DialectSQLite }
func (d fakeDriver) Open(context.Context, *config.Database) (*sql.DB, error) {
	return nil, nil
}

// resetDrivers swaps in an empty registry for the duration of the test.
func resetDrivers(t *testing.T) {
	t.Helper()
	driversMu.Lock()
	saved := drivers
	drivers = make(map[string]Driver)
	driversMu.Unlock()
	t.Cleanup(func() {
		driversMu.Lock()
		drivers = saved
		driversMu.Unlock()
	})
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestRegisterAndLookup(t *testing.T) {
	resetDrivers(t)

	Register(fakeDriver{name: "postgres"})
	Register(fakeDriver{name: "mysql"})

	d, err := Lookup("mysql")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if d.Name() != "mysql" {
		t.Errorf("Name() = %q", d.Name())
	}
	if got := Drivers(); !slices.Equal(got, []string{"mysql", "postgres"}) {
		t.Errorf("Drivers() = %v", got)
	}
}

func TestRegisterPanics(t *testing.T) {
	resetDrivers(t)

	mustPanic(t, "nil", func() { Register(nil) })
	mustPanic(t, "empty name", func() { Register(fakeDriver{}) })

	Register(fakeDriver{name: "dup"})
	mustPanic(t, "duplicate", func() { Register(fakeDriver{name: "dup"}) })
}

func TestLookupUnknown(t *testing.T) {
	resetDrivers(t)

	_, err := Lookup("oracle")
	if err == nil || !strings.Contains(err.Error(), "forgotten import") {
		t.Fatalf("expected unknown driver error, got %v", err)
	}
}

func TestConcurrentLookup(t *testing.T) {
	resetDrivers(t)
	Register(fakeDriver{name: "sqlite"})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := Lookup("sqlite"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
}

func TestNewRejectsMissingConfig(t *testing.T) {
	if _, _, err := New(context.Background(), nil); err == nil {
		t.Error("expected an error for a nil config")
	}
	if _, _, err := New(context.Background(), &config.Data{}); err == nil {
		t.Error("expected an error for a missing database section")
	}
}

func TestOpenPoolRequiresSource(t *testing.T) {
	if _, err := OpenPool(context.Background(), "sqlite3", &config.Database{}, Pool{}); err == nil {
		t.Fatal("expected an error for an empty source")
	}
}
