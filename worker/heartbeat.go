package worker

import (
	"context"
	"time"

	"github.com/ncobase/runner/executor"
)

func (h *Handle) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.renewAll(ctx)
		}
	}
}

// renewAll renews the lease of every in-flight run. A run whose lease can
// no longer be renewed is cancelled with executor.ErrLeaseLost. Store errors
// leave the run alone; if they persist the lease expires and the run is
// lost on a later renew.
func (h *Handle) renewAll(ctx context.Context) {
	h.mu.Lock()
	tasks := make([]*task, 0, len(h.inflight))
	for _, t := range h.inflight {
		tasks = append(tasks, t)
	}
	h.mu.Unlock()

	for _, t := range tasks {
		if err := h.renew(ctx, t); err != nil && ctx.Err() != nil {
			return
		}
	}
}

func (h *Handle) renew(ctx context.Context, t *task) error {
	ok, err := h.deps.Leases.Renew(ctx, t.run.ID, h.cfg.ID, h.deps.Leases.Now())
	if ok {
		return nil
	}
	// A run that finished since the snapshot released its own lease.
	if !h.tracking(t) {
		return nil
	}
	if err != nil {
		if ctx.Err() == nil {
			h.log.Error(ctx, "Failed to renew lease", "run_id", t.run.ID, "error", err)
		}
		return err
	}
	h.log.Warn(ctx, "Lease lost, cancelling run", "run_id", t.run.ID)
	t.cancel(executor.ErrLeaseLost)
	return nil
}

// tracking reports whether t is still in flight.
func (h *Handle) tracking(t *task) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inflight[t.run.ID] == t
}
