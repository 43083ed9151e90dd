// Package lease grants, renews and releases exclusive ownership of a run.
//
// A lease is the pair (worker_id, heartbeat_at) on the run row. It is fresh
// while heartbeat_at is within the lease timeout. Every transition is a single
// conditional UPDATE, so two workers racing on one run cannot both win.
package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/store"
	"github.com/ncobase/runner/structs"
)

// ErrNotTerminal is returned by Release for a non-terminal status.
var ErrNotTerminal = errors.New("lease: release requires a terminal status")

// Manager issues leases against the run store.
type Manager struct {
	store        *store.Store
	leaseTimeout time.Duration
	now          func() time.Time
	log          *logger.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager returns a lease manager. Leases whose heartbeat is older than
// leaseTimeout are considered abandoned.
func NewManager(s *store.Store, leaseTimeout time.Duration, opts ...Option) *Manager {
	m := &Manager{
		store:        s,
		leaseTimeout: leaseTimeout,
		now:          time.Now,
		log:          logger.StdLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the manager clock reading.
func (m *Manager) Now() time.Time {
	return m.now()
}

// LeaseTimeout returns the liveness window.
func (m *Manager) LeaseTimeout() time.Duration {
	return m.leaseTimeout
}

// StaleBefore returns the heartbeat cutoff at now.
func (m *Manager) StaleBefore(now time.Time) time.Time {
	return now.Add(-m.leaseTimeout)
}

// Acquire leases runID to workerID at now. It succeeds only when the run is
// queued, or running with a heartbeat older than now minus the lease timeout.
func (m *Manager) Acquire(ctx context.Context, runID, workerID string, now time.Time) (bool, error) {
	ok, err := m.store.AcquireRun(ctx, runID, workerID, now, m.StaleBefore(now))
	if err != nil {
		return false, err
	}
	if ok {
		m.log.Debug(ctx, "Lease acquired", "run_id", runID, "worker_id", workerID)
	}
	return ok, nil
}

// Renew moves the heartbeat of a held lease to now. It returns false when
// workerID no longer owns the run; the caller must then abandon it.
func (m *Manager) Renew(ctx context.Context, runID, workerID string, now time.Time) (bool, error) {
	return m.store.RenewRun(ctx, runID, workerID, now)
}

// Release writes the terminal outcome of a held lease and clears ownership.
// It returns false when workerID no longer owns the run, in which case
// nothing is written.
func (m *Manager) Release(ctx context.Context, runID, workerID string, outcome structs.Outcome) (bool, error) {
	if !outcome.Status.IsTerminal() {
		return false, fmt.Errorf("%w: %q", ErrNotTerminal, outcome.Status)
	}
	ok, err := m.store.ReleaseRun(ctx, runID, workerID, outcome.Status, outcome.Kind, outcome.Reason, m.now())
	if err != nil {
		return false, err
	}
	if !ok {
		m.log.Warn(ctx, "Lease lost before release", "run_id", runID, "worker_id", workerID, "status", outcome.Status)
	}
	return ok, nil
}

// Yield hands a held run back to the queue without ending it and without
// consuming an attempt. It is used for suspension and shutdown hand-back.
func (m *Manager) Yield(ctx context.Context, runID, workerID string) (bool, error) {
	ok, err := m.store.YieldRun(ctx, runID, workerID)
	if err != nil {
		return false, err
	}
	if ok {
		m.log.Debug(ctx, "Lease yielded", "run_id", runID, "worker_id", workerID)
	}
	return ok, nil
}
