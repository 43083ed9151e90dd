// Package storetest opens throwaway SQLite stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/data"
	"github.com/ncobase/runner/store"
	"github.com/ncobase/runner/structs"

	_ "github.com/ncobase/runner/data/sqlite"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock returns a clock stopped at a fixed instant.
func NewClock() *Clock {
	return &Clock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current clock reading.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// New opens a migrated SQLite store in a temporary directory. A nil now uses
// the wall clock.
func New(t testing.TB, now func() time.Time) *store.Store {
	t.Helper()

	cfg := &config.Data{Database: &config.Database{
		Driver:      "sqlite",
		Source:      "file:" + filepath.Join(t.TempDir(), "runner.db") + "?_busy_timeout=5000",
		MaxOpenConn: 1,
		MaxIdleConn: 1,
	}}

	d, cleanup, err := data.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(cleanup)

	var opts []store.Option
	if now != nil {
		opts = append(opts, store.WithClock(now))
	}
	s := store.New(d, opts...)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

// SeedJob inserts a pending job of type jobType with one queued run at
// attempt 0 and returns both.
func SeedJob(t testing.TB, s *store.Store, workspaceID string, jobType structs.JobType) (*structs.Job, *structs.Run) {
	t.Helper()

	ctx := context.Background()
	job := &structs.Job{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Type:        jobType,
		Input:       []byte(`{}`),
		Status:      structs.JobPending,
	}
	run := &structs.Run{ID: uuid.NewString(), JobID: job.ID, Status: structs.RunQueued}

	err := s.WithTx(ctx, func(ctx context.Context) error {
		if err := s.CreateJob(ctx, job); err != nil {
			return err
		}
		return s.CreateRun(ctx, run)
	})
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job, run
}
