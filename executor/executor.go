// Package executor runs a leased run through the handler registered for its
// job type and writes exactly one terminal outcome for the attempt.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/ncobase/runner/ctxutil"
	"github.com/ncobase/runner/lease"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/logging/observes"
	"github.com/ncobase/runner/messaging"
	"github.com/ncobase/runner/store"
	"github.com/ncobase/runner/structs"
	"go.opentelemetry.io/otel/attribute"
)

// Executor dispatches runs to handlers.
type Executor struct {
	store    *store.Store
	leases   *lease.Manager
	registry *Registry
	notifier messaging.Notifier
	log      *logger.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithNotifier sets the notifier used for pending questions.
func WithNotifier(n messaging.Notifier) Option {
	return func(x *Executor) { x.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(x *Executor) {
		if l != nil {
			x.log = l
		}
	}
}

// New returns an executor.
func New(s *store.Store, leases *lease.Manager, registry *Registry, opts ...Option) *Executor {
	x := &Executor{
		store:    s,
		leases:   leases,
		registry: registry,
		log:      logger.StdLogger(),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Registry returns the handler registry.
func (x *Executor) Registry() *Registry {
	return x.registry
}

// Execute runs a run leased by workerID to completion and returns its
// outcome. Handler errors and panics never escape; they become the outcome.
//
// When ctx is cancelled with cause ErrLeaseLost nothing more is written for
// the run. With cause ErrShutdown the run is yielded back to the queue.
func (x *Executor) Execute(ctx context.Context, run *structs.Run, job *structs.Job, workerID string) (outcome structs.Outcome) {
	ctx = ctxutil.SetRunID(ctx, run.ID)
	ctx, span := observes.StartSpan(ctx, "executor.Execute",
		attribute.String("run.id", run.ID),
		attribute.String("job.id", job.ID),
		attribute.String("job.type", string(job.Type)),
		attribute.Int("run.attempt", run.Attempt),
	)
	defer func() {
		var err error
		if outcome.Status == structs.RunFailed {
			err = errors.New(outcome.Reason)
		}
		span.SetAttributes(attribute.String("run.status", string(outcome.Status)))
		observes.EndSpan(span, err)
	}()

	h, ok := x.registry.Lookup(job.Type)
	if !ok {
		outcome = structs.Outcome{
			Status: structs.RunFailed,
			Kind:   structs.FailureConfig,
			Reason: fmt.Sprintf("%v for job type %q", ErrNoHandler, job.Type),
		}
		return x.finish(ctx, run, job, workerID, outcome)
	}

	if _, err := x.store.SetJobStatus(ctx, job.ID, structs.JobRunning, "", structs.JobPending); err != nil {
		x.log.Warn(ctx, "Failed to mark job running", "job_id", job.ID, "error", err)
	}

	exec := &Exec{run: run, job: job, store: x.store, notifier: x.notifier, log: x.log}
	err := x.invoke(ctx, h, exec, job)

	outcome = x.classify(ctx, exec, err)
	outcome.Artifacts = exec.artifactIDs()
	return x.finish(ctx, run, job, workerID, outcome)
}

func (x *Executor) invoke(ctx context.Context, h Handler, exec *Exec, job *structs.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			x.log.Error(ctx, "Handler panicked", "job_type", job.Type, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, exec, job)
}

func (x *Executor) classify(ctx context.Context, exec *Exec, err error) structs.Outcome {
	bg := context.WithoutCancel(ctx)
	if err == nil {
		if exec.Cancelled(bg) {
			return structs.Outcome{Status: structs.RunCancelled, Kind: structs.FailureCancelled, Reason: ErrCancelled.Error()}
		}
		return structs.Outcome{Status: structs.RunSucceeded}
	}

	cause := context.Cause(ctx)
	var suspend *SuspendError
	switch {
	case errors.Is(cause, ErrLeaseLost):
		return structs.Outcome{Status: structs.RunFailed, Kind: structs.FailureLeaseLost, Reason: ErrLeaseLost.Error()}
	case errors.As(err, &suspend):
		return structs.Outcome{Status: structs.RunQueued, Suspended: true, Reason: suspend.Error()}
	case exec.Cancelled(bg):
		return structs.Outcome{Status: structs.RunCancelled, Kind: structs.FailureCancelled, Reason: ErrCancelled.Error()}
	case errors.Is(cause, ErrShutdown):
		return structs.Outcome{Status: structs.RunQueued, Reason: ErrShutdown.Error()}
	case errors.Is(err, ErrCancelled):
		return structs.Outcome{Status: structs.RunCancelled, Kind: structs.FailureCancelled, Reason: ErrCancelled.Error()}
	case IsPermanent(err):
		return structs.Outcome{Status: structs.RunFailed, Kind: structs.FailureConfig, Reason: err.Error()}
	default:
		return structs.Outcome{Status: structs.RunFailed, Kind: structs.FailureTransient, Reason: err.Error()}
	}
}

// finish performs the single terminal write of the attempt. Writes use a
// detached context so that a cancelled run still records its outcome.
func (x *Executor) finish(ctx context.Context, run *structs.Run, job *structs.Job, workerID string, outcome structs.Outcome) structs.Outcome {
	if outcome.Kind == structs.FailureLeaseLost {
		x.log.Warn(ctx, "Run abandoned after lease loss", "job_id", job.ID)
		return outcome
	}

	wctx, cancel := ctxutil.Detached(ctx, ctxutil.DefaultDetachedTimeout)
	defer cancel()

	var owned bool
	err := x.store.WithTx(wctx, func(tx context.Context) error {
		var err error
		if outcome.Status == structs.RunQueued {
			owned, err = x.leases.Yield(tx, run.ID, workerID)
		} else {
			owned, err = x.leases.Release(tx, run.ID, workerID, outcome)
		}
		if err != nil || !owned {
			return err
		}

		switch {
		case outcome.Suspended:
			err = x.suspendJob(tx, job.ID)
		case outcome.Status == structs.RunSucceeded:
			_, err = x.store.SetJobStatus(tx, job.ID, structs.JobCompleted, "")
		case outcome.Status == structs.RunCancelled:
			_, err = x.store.SetJobStatus(tx, job.ID, structs.JobCancelled, outcome.Reason)
		case outcome.Status == structs.RunFailed && outcome.Kind == structs.FailureConfig:
			_, err = x.store.SetJobStatus(tx, job.ID, structs.JobFailed, outcome.Reason)
		}
		return err
	})
	if err != nil {
		x.log.Error(ctx, "Failed to record run outcome", "job_id", job.ID, "status", outcome.Status, "error", err)
		return outcome
	}
	if !owned {
		x.log.Warn(ctx, "Run outcome discarded, lease no longer held", "job_id", job.ID, "status", outcome.Status)
		outcome.Kind = structs.FailureLeaseLost
		return outcome
	}

	x.log.Info(ctx, "Run finished",
		"job_id", job.ID,
		"status", outcome.Status,
		"kind", outcome.Kind,
		"suspended", outcome.Suspended,
		"attempt", run.Attempt,
	)
	return outcome
}

// suspendJob parks the job in waiting_input, or returns it to pending when
// every question was resolved before the suspension was recorded. The job
// row is written before questions are counted.
func (x *Executor) suspendJob(tx context.Context, jobID string) error {
	if _, err := x.store.SetJobStatus(tx, jobID, structs.JobWaitingInput, "", structs.JobPending, structs.JobRunning); err != nil {
		return err
	}
	open, err := x.store.CountOpenQuestions(tx, jobID)
	if err != nil || open > 0 {
		return err
	}
	_, err = x.store.SetJobStatus(tx, jobID, structs.JobPending, "", structs.JobWaitingInput)
	return err
}
