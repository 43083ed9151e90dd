// Package worker is the pool controller: it polls for queued runs, leases
// them within a bounded number of slots, keeps their heartbeats fresh and
// drains on shutdown.
//
// There is no process-wide worker. Start returns a Handle and every
// operation goes through it, so several workers can live in one process.
package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ncobase/runner/concurrency"
	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/ctxutil"
	"github.com/ncobase/runner/executor"
	"github.com/ncobase/runner/lease"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/rescue"
	"github.com/ncobase/runner/store"
	"github.com/ncobase/runner/structs"
)

// State of the controller.
type State string

const (
	StateIdle        State = "idle"
	StatePolling     State = "polling"
	StateDispatching State = "dispatching"
	StateDraining    State = "draining"
	StateStopped     State = "stopped"
)

// abandonTimeout bounds the wait for handlers that ignore cancellation.
// Their leases are then left to the rescue sweeper.
const abandonTimeout = 10 * time.Second

// Deps are the collaborators of a worker.
type Deps struct {
	Store    *store.Store
	Leases   *lease.Manager
	Executor *executor.Executor
	// Sweeper is optional; it runs only when the config enables rescue.
	Sweeper *rescue.Sweeper
	Logger  *logger.Logger
}

// Status is a snapshot of a worker.
type Status struct {
	WorkerID    string              `json:"workerId"`
	WorkspaceID string              `json:"workspaceId,omitempty"`
	State       State               `json:"state"`
	InFlight    []string            `json:"inFlight"`
	Slots       concurrency.Metrics `json:"slots"`
	Acquired    int64               `json:"acquired"`
	Succeeded   int64               `json:"succeeded"`
	Failed      int64               `json:"failed"`
	Cancelled   int64               `json:"cancelled"`
	Suspended   int64               `json:"suspended"`
	Yielded     int64               `json:"yielded"`
	LeaseLost   int64               `json:"leaseLost"`
	PollErrors  int64               `json:"pollErrors"`
}

type task struct {
	run    *structs.Run
	cancel context.CancelCauseFunc
}

type counters struct {
	acquired, succeeded, failed, cancelled, suspended, yielded, leaseLost, pollErrors atomic.Int64
}

// Handle controls a started worker.
type Handle struct {
	cfg   *config.Worker
	deps  Deps
	log   *logger.Logger
	slots *concurrency.Manager

	baseCtx  context.Context
	bgCancel context.CancelFunc

	state atomic.Value

	mu       sync.Mutex
	inflight map[string]*task
	execWg   sync.WaitGroup
	loopsWg  sync.WaitGroup

	stopping  chan struct{}
	pollDone  chan struct{}
	force     chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	forceOnce sync.Once

	stats counters
}

// Start validates the configuration, checks the store is reachable and
// starts polling, heartbeat and (when enabled) rescue loops. An unreachable
// store is an error; later poll failures are only logged. The worker stops
// when ctx is cancelled or Stop is called.
func Start(ctx context.Context, cfg *config.Worker, deps Deps) (*Handle, error) {
	if cfg == nil {
		return nil, errors.New("worker: config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Store == nil || deps.Leases == nil || deps.Executor == nil {
		return nil, errors.New("worker: store, leases and executor are required")
	}
	if err := deps.Store.Ping(ctx); err != nil {
		return nil, err
	}

	slots, err := concurrency.NewManager(int32(cfg.MaxConcurrent))
	if err != nil {
		return nil, err
	}

	log := deps.Logger
	if log == nil {
		log = logger.StdLogger()
	}

	base := ctxutil.SetWorkerID(context.WithoutCancel(ctx), cfg.ID)
	bgCtx, bgCancel := context.WithCancel(base)

	h := &Handle{
		cfg:      cfg,
		deps:     deps,
		log:      log,
		slots:    slots,
		baseCtx:  base,
		bgCancel: bgCancel,
		inflight: make(map[string]*task),
		stopping: make(chan struct{}),
		pollDone: make(chan struct{}),
		force:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	h.state.Store(StateIdle)

	go h.pollLoop(base)

	h.loopsWg.Add(1)
	go func() {
		defer h.loopsWg.Done()
		h.heartbeatLoop(bgCtx)
	}()

	if cfg.RescueEnabled && deps.Sweeper != nil {
		h.loopsWg.Add(1)
		go func() {
			defer h.loopsWg.Done()
			deps.Sweeper.Run(bgCtx)
		}()
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = h.Stop(context.Background())
		case <-h.done:
		}
	}()

	log.Info(base, "Worker started",
		"workspace_id", cfg.WorkspaceID,
		"max_concurrent", cfg.MaxConcurrent,
		"poll_interval", cfg.PollInterval.String(),
		"heartbeat_interval", cfg.HeartbeatInterval.String(),
		"rescue_enabled", cfg.RescueEnabled,
	)
	return h, nil
}

// ID returns the worker id.
func (h *Handle) ID() string {
	return h.cfg.ID
}

// Done is closed once the worker has stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Status returns a snapshot of the worker.
func (h *Handle) Status() Status {
	h.mu.Lock()
	ids := make([]string, 0, len(h.inflight))
	for id := range h.inflight {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	sort.Strings(ids)

	return Status{
		WorkerID:    h.cfg.ID,
		WorkspaceID: h.cfg.WorkspaceID,
		State:       h.State(),
		InFlight:    ids,
		Slots:       h.slots.GetMetrics(),
		Acquired:    h.stats.acquired.Load(),
		Succeeded:   h.stats.succeeded.Load(),
		Failed:      h.stats.failed.Load(),
		Cancelled:   h.stats.cancelled.Load(),
		Suspended:   h.stats.suspended.Load(),
		Yielded:     h.stats.yielded.Load(),
		LeaseLost:   h.stats.leaseLost.Load(),
		PollErrors:  h.stats.pollErrors.Load(),
	}
}

// State returns the controller state.
func (h *Handle) State() State {
	return h.state.Load().(State)
}

func (h *Handle) setState(s State) {
	// draining and stopped are sticky for the poll loop.
	for {
		cur := h.State()
		if (cur == StateDraining || cur == StateStopped) && s != StateStopped {
			return
		}
		if h.state.CompareAndSwap(cur, s) {
			return
		}
	}
}
