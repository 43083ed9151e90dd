package worker

import (
	"context"
	"time"

	"github.com/ncobase/runner/executor"
)

// Stop drains the worker: polling stops, in-flight runs get the configured
// grace period to finish, then the rest are cancelled and hand their leases
// back to the queue. If ctx ends before the worker has stopped, the grace
// period is cut short. Stop is safe to call more than once.
func (h *Handle) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() { go h.shutdown() })

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		h.forceOnce.Do(func() { close(h.force) })
		<-h.done
		return ctx.Err()
	}
}

func (h *Handle) shutdown() {
	ctx := h.baseCtx
	close(h.stopping)
	<-h.pollDone
	h.state.Store(StateDraining)

	n := h.cancelable()
	h.log.Info(ctx, "Worker draining", "in_flight", n, "grace", h.cfg.ShutdownGrace.String())

	drained := waitGroupDone(&h.execWg)
	grace := time.NewTimer(h.cfg.ShutdownGrace)
	defer grace.Stop()

	select {
	case <-drained:
	case <-grace.C:
		h.interrupt(ctx, drained)
	case <-h.force:
		h.interrupt(ctx, drained)
	}

	// Heartbeats stop only now, so leases of runs still executing stay fresh
	// until they are released or abandoned.
	h.bgCancel()
	h.loopsWg.Wait()

	h.state.Store(StateStopped)
	close(h.done)

	st := h.Status()
	h.log.Info(ctx, "Worker stopped",
		"acquired", st.Acquired,
		"succeeded", st.Succeeded,
		"failed", st.Failed,
		"suspended", st.Suspended,
		"yielded", st.Yielded,
		"lease_lost", st.LeaseLost,
	)
}

// interrupt cancels every in-flight run and waits a bounded time for the
// executor to yield their leases. Handlers that do not return in time are
// abandoned; once heartbeats stop the rescue sweeper reclaims their runs.
func (h *Handle) interrupt(ctx context.Context, drained <-chan struct{}) {
	n := h.cancelAll(executor.ErrShutdown)
	h.log.Warn(ctx, "Grace period over, interrupting runs", "in_flight", n)

	timer := time.NewTimer(abandonTimeout)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		h.log.Error(ctx, "Abandoning runs that ignored cancellation", "in_flight", h.cancelable())
	}
}

func (h *Handle) cancelable() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inflight)
}

func waitGroupDone(wg interface{ Wait() }) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	return ch
}
