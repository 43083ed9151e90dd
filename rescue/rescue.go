// Package rescue reclaims runs whose lease went stale and schedules retries
// of transient failures, so that no run stays non-terminal forever.
package rescue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ncobase/runner/lease"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/logging/observes"
	"github.com/ncobase/runner/messaging"
	"github.com/ncobase/runner/store"
	"github.com/ncobase/runner/structs"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultBatchSize bounds the rows examined per category per sweep.
const DefaultBatchSize = 100

// Result counts what one sweep did.
type Result struct {
	Requeued  int `json:"requeued"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Exhausted int `json:"exhausted"`
	Cancelled int `json:"cancelled"`
}

// Sweeper audits leases on its own interval, independent of any worker.
type Sweeper struct {
	store       *store.Store
	leases      *lease.Manager
	notifier    messaging.Notifier
	log         *logger.Logger
	interval    time.Duration
	maxAttempts int
	batchSize   int
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithNotifier sets the notifier for exhausted runs.
func WithNotifier(n messaging.Notifier) Option {
	return func(s *Sweeper) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New returns a sweeper. Attempts are counted from zero, so a run is
// executed at most maxAttempts times.
func New(s *store.Store, leases *lease.Manager, interval time.Duration, maxAttempts int, opts ...Option) *Sweeper {
	sw := &Sweeper{
		store:       s,
		leases:      leases,
		log:         logger.StdLogger(),
		interval:    interval,
		maxAttempts: maxAttempts,
		batchSize:   DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(sw)
	}
	return sw
}

// Run sweeps immediately and then every interval until ctx is done. Sweep
// failures are logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if res, err := s.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Error(ctx, "Rescue sweep failed", "error", err)
		} else if res != (Result{}) {
			s.log.Info(ctx, "Rescue sweep",
				"requeued", res.Requeued,
				"failed", res.Failed,
				"retried", res.Retried,
				"exhausted", res.Exhausted,
				"cancelled", res.Cancelled,
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep performs one pass over stale leases, failed transient runs and
// queued runs of finished jobs.
func (s *Sweeper) Sweep(ctx context.Context) (res Result, err error) {
	ctx, span := observes.StartSpan(ctx, "rescue.Sweep")
	defer func() {
		span.SetAttributes(
			attribute.Int("rescue.requeued", res.Requeued),
			attribute.Int("rescue.failed", res.Failed),
			attribute.Int("rescue.retried", res.Retried),
			attribute.Int("rescue.exhausted", res.Exhausted),
			attribute.Int("rescue.cancelled", res.Cancelled),
		)
		observes.EndSpan(span, err)
	}()

	if err = s.reclaimStale(ctx, &res); err != nil {
		return res, err
	}
	if err = s.scheduleRetries(ctx, &res); err != nil {
		return res, err
	}
	err = s.cancelOrphans(ctx, &res)
	return res, err
}

func (s *Sweeper) reclaimStale(ctx context.Context, res *Result) error {
	cutoff := s.leases.StaleBefore(s.leases.Now())
	runs, err := s.store.ListStaleRuns(ctx, cutoff, s.batchSize)
	if err != nil {
		return err
	}

	for _, run := range runs {
		var (
			job    *structs.Job
			status structs.RunStatus
			reason string
		)
		// The job is read inside the transaction so that a cancel landing
		// after the listing is honoured.
		err := s.store.WithTx(ctx, func(ctx context.Context) error {
			var (
				ok  bool
				err error
			)
			if job, err = s.store.GetJob(ctx, run.JobID); err != nil {
				return err
			}

			switch {
			case job.Status == structs.JobCancelled:
				ok, err = s.store.FailStaleRun(ctx, run.ID, run.Attempt, cutoff,
					structs.RunCancelled, structs.FailureCancelled, "job cancelled")
				if ok {
					status = structs.RunCancelled
				}

			case run.Attempt+1 < s.maxAttempts:
				ok, err = s.store.RequeueStaleRun(ctx, run.ID, run.Attempt, cutoff)
				if ok {
					status = structs.RunQueued
				}

			default:
				reason = fmt.Sprintf("exhausted retries after %d attempts: lease expired", run.Attempt+1)
				ok, err = s.store.FailStaleRun(ctx, run.ID, run.Attempt, cutoff,
					structs.RunFailed, structs.FailureExhausted, reason)
				if err != nil || !ok {
					return err
				}
				status = structs.RunFailed
				_, err = s.store.SetJobStatus(ctx, job.ID, structs.JobFailed, reason, structs.JobPending, structs.JobRunning, structs.JobWaitingInput)
			}
			return err
		})
		if errors.Is(err, store.ErrNotFound) {
			s.log.Error(ctx, "Failed to load job of stale run", "run_id", run.ID, "error", err)
			continue
		}
		if err != nil {
			return err
		}

		switch status {
		case structs.RunCancelled:
			res.Failed++
		case structs.RunQueued:
			res.Requeued++
			s.log.Warn(ctx, "Stale run requeued",
				"run_id", run.ID,
				"job_id", run.JobID,
				"previous_worker", run.WorkerID,
				"attempt", run.Attempt+1,
			)
		case structs.RunFailed:
			res.Failed++
			s.exhausted(ctx, job, run, reason)
		}
	}
	return nil
}

func (s *Sweeper) scheduleRetries(ctx context.Context, res *Result) error {
	runs, err := s.store.ListRetryableRuns(ctx, s.batchSize)
	if err != nil {
		return err
	}

	for _, run := range runs {
		var (
			job       *structs.Job
			next      *structs.Run
			exhausted bool
			reason    string
		)
		err = s.store.WithTx(ctx, func(ctx context.Context) error {
			ok, err := s.store.MarkRetried(ctx, run.ID)
			if err != nil || !ok {
				return err
			}
			if job, err = s.store.GetJob(ctx, run.JobID); err != nil {
				return err
			}
			if job.Status.IsTerminal() {
				return nil
			}

			if run.Attempt+1 < s.maxAttempts {
				next = &structs.Run{
					ID:      uuid.NewString(),
					JobID:   run.JobID,
					Status:  structs.RunQueued,
					Attempt: run.Attempt + 1,
				}
				return s.store.CreateRun(ctx, next)
			}

			exhausted = true
			reason = fmt.Sprintf("exhausted retries after %d attempts: %s", run.Attempt+1, run.Reason)
			_, err = s.store.SetJobStatus(ctx, job.ID, structs.JobFailed, reason, structs.JobPending, structs.JobRunning, structs.JobWaitingInput)
			return err
		})
		if errors.Is(err, store.ErrNotFound) {
			s.log.Error(ctx, "Failed to load job of failed run", "run_id", run.ID, "error", err)
			continue
		}
		if err != nil {
			return err
		}

		switch {
		case next != nil:
			res.Retried++
			s.log.Info(ctx, "Retry scheduled", "job_id", job.ID, "failed_run", run.ID, "run_id", next.ID, "attempt", next.Attempt)
		case exhausted:
			res.Exhausted++
			s.exhausted(ctx, job, run, reason)
		}
	}
	return nil
}

// cancelOrphans ends queued runs left behind on jobs that became terminal
// while a requeue or retry was being written.
func (s *Sweeper) cancelOrphans(ctx context.Context, res *Result) error {
	n, err := s.store.CancelOrphanedRuns(ctx, "job no longer active")
	if err != nil {
		return err
	}
	if n > 0 {
		res.Cancelled += int(n)
		s.log.Warn(ctx, "Queued runs of finished jobs cancelled", "count", n)
	}
	return nil
}

func (s *Sweeper) exhausted(ctx context.Context, job *structs.Job, run *structs.Run, reason string) {
	s.log.Warn(ctx, "Run exhausted retries", "job_id", job.ID, "run_id", run.ID, "attempt", run.Attempt, "reason", reason)
	if s.notifier == nil {
		return
	}
	for _, ev := range []messaging.Event{messaging.EventRunExhausted, messaging.EventJobFailed} {
		err := s.notifier.Notify(ctx, messaging.Notification{
			Event:       ev,
			WorkspaceID: job.WorkspaceID,
			JobID:       job.ID,
			RunID:       run.ID,
			Attempt:     run.Attempt,
			Message:     reason,
		})
		if err != nil {
			s.log.Error(ctx, "Failed to publish notification", "event", ev, "job_id", job.ID, "error", err)
		}
	}
}
