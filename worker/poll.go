package worker

import (
	"context"
	"errors"
	"time"

	"github.com/ncobase/runner/ctxutil"
	"github.com/ncobase/runner/executor"
	"github.com/ncobase/runner/structs"
)

func (h *Handle) pollLoop(ctx context.Context) {
	defer close(h.pollDone)

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := h.poll(ctx); err != nil {
			h.stats.pollErrors.Add(1)
			h.log.Error(ctx, "Poll cycle failed", "error", err)
		}

		select {
		case <-h.stopping:
			return
		case <-ticker.C:
		}
	}
}

// poll runs one cycle: list up to the free slot count of queued runs, lease
// what it can and dispatch each lease to the executor. It returns the number
// of runs dispatched.
func (h *Handle) poll(ctx context.Context) (int, error) {
	select {
	case <-h.stopping:
		return 0, nil
	default:
	}

	free := int(h.slots.Available())
	if free <= 0 {
		return 0, nil
	}

	h.setState(StatePolling)
	defer h.setState(StateIdle)

	runs, err := h.deps.Store.ListQueuedRuns(ctx, h.cfg.WorkspaceID, free)
	if err != nil {
		return 0, err
	}
	if len(runs) == 0 {
		return 0, nil
	}

	h.setState(StateDispatching)
	dispatched := 0
	for _, run := range runs {
		select {
		case <-h.stopping:
			return dispatched, nil
		default:
		}

		if !h.slots.TryAcquire() {
			break
		}
		if ok := h.claim(ctx, run); !ok {
			_ = h.slots.Release()
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

// claim leases run and starts its execution. It reports whether the run was
// dispatched; the caller keeps the slot only then.
func (h *Handle) claim(ctx context.Context, run *structs.Run) bool {
	ok, err := h.deps.Leases.Acquire(ctx, run.ID, h.cfg.ID, h.deps.Leases.Now())
	if err != nil {
		h.log.Error(ctx, "Failed to acquire lease", "run_id", run.ID, "error", err)
		return false
	}
	if !ok {
		return false
	}

	job, err := h.deps.Store.GetJob(ctx, run.JobID)
	if err != nil {
		h.log.Error(ctx, "Failed to load job of acquired run", "run_id", run.ID, "job_id", run.JobID, "error", err)
		if _, yerr := h.deps.Leases.Yield(ctx, run.ID, h.cfg.ID); yerr != nil {
			h.log.Error(ctx, "Failed to yield lease", "run_id", run.ID, "error", yerr)
		}
		return false
	}

	// The row as leased: running, owned by this worker.
	now := h.deps.Leases.Now()
	run.Status = structs.RunRunning
	run.WorkerID = h.cfg.ID
	run.HeartbeatAt = &now
	if run.StartedAt == nil {
		run.StartedAt = &now
	}

	runCtx, cancel := context.WithCancelCause(ctxutil.SetRunID(h.baseCtx, run.ID))
	t := &task{run: run, cancel: cancel}

	h.mu.Lock()
	h.inflight[run.ID] = t
	h.mu.Unlock()
	h.stats.acquired.Add(1)
	h.execWg.Add(1)

	h.log.Info(runCtx, "Run acquired", "job_id", job.ID, "job_type", job.Type, "attempt", run.Attempt)

	go h.execute(runCtx, t, job)
	return true
}

func (h *Handle) execute(ctx context.Context, t *task, job *structs.Job) {
	defer func() {
		t.cancel(nil)
		h.mu.Lock()
		delete(h.inflight, t.run.ID)
		h.mu.Unlock()
		if err := h.slots.Release(); err != nil {
			h.log.Error(ctx, "Failed to release slot", "error", err)
		}
		h.execWg.Done()
	}()

	out := h.deps.Executor.Execute(ctx, t.run, job, h.cfg.ID)
	h.record(ctx, out)
}

func (h *Handle) record(ctx context.Context, out structs.Outcome) {
	switch {
	case out.Kind == structs.FailureLeaseLost:
		h.stats.leaseLost.Add(1)
	case out.Suspended:
		h.stats.suspended.Add(1)
	case out.Status == structs.RunQueued:
		h.stats.yielded.Add(1)
	case out.Status == structs.RunSucceeded:
		h.stats.succeeded.Add(1)
	case out.Status == structs.RunCancelled:
		h.stats.cancelled.Add(1)
	case out.Status == structs.RunFailed:
		h.stats.failed.Add(1)
	}
	if errors.Is(context.Cause(ctx), executor.ErrShutdown) {
		h.log.Warn(ctx, "Run interrupted by shutdown", "status", out.Status)
	}
}

func (h *Handle) cancelAll(cause error) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range h.inflight {
		t.cancel(cause)
	}
	return len(h.inflight)
}
