// Package store is the SQL Run Store. Every state change of a run goes
// through a conditional UPDATE whose RowsAffected decides who won.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ncobase/runner/data"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a conditional write lost its race.
	ErrConflict = errors.New("store: conflict")
)

// Store reads and writes jobs, runs, logs, artifacts and questions.
type Store struct {
	d   *data.Data
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a store over d.
func New(d *data.Data, opts ...Option) *Store {
	s := &Store{d: d, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Data returns the underlying data layer.
func (s *Store) Data() *data.Data {
	return s.d
}

// Now returns the store clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

// WithTx runs fn inside a transaction carried by ctx.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.d.WithTx(ctx, fn)
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.d.Ping(ctx)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.d.Conn(ctx).ExecContext(ctx, s.d.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.d.Conn(ctx).QueryContext(ctx, s.d.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.d.Conn(ctx).QueryRowContext(ctx, s.d.Rebind(query), args...)
}

// Micros converts t to the stored representation.
func Micros(t time.Time) int64 {
	return t.UnixMicro()
}

// FromMicros converts a stored timestamp back to UTC time.
func FromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: Micros(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := FromMicros(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
