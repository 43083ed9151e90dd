package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/executor"
	"github.com/ncobase/runner/lease"
	"github.com/ncobase/runner/rescue"
	"github.com/ncobase/runner/store"
	"github.com/ncobase/runner/store/storetest"
	"github.com/ncobase/runner/structs"
)

func testConfig(id string, maxConcurrent int) *config.Worker {
	return &config.Worker{
		ID:                id,
		PollInterval:      10 * time.Millisecond,
		MaxConcurrent:     maxConcurrent,
		HeartbeatInterval: 20 * time.Millisecond,
		RescueInterval:    50 * time.Millisecond,
		LeaseTimeout:      time.Second,
		MaxAttempts:       3,
		ShutdownGrace:     100 * time.Millisecond,
	}
}

func offer(ch chan string, v string) {
	select {
	case ch <- v:
	default:
	}
}

type env struct {
	store    *store.Store
	leases   *lease.Manager
	registry *executor.Registry
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := storetest.New(t, nil)
	return &env{
		store:    s,
		leases:   lease.NewManager(s, time.Second),
		registry: executor.NewRegistry(),
	}
}

func (e *env) start(t *testing.T, cfg *config.Worker) *Handle {
	t.Helper()
	h, err := Start(context.Background(), cfg, Deps{
		Store:    e.store,
		Leases:   e.leases,
		Executor: executor.New(e.store, e.leases, e.registry),
		Sweeper:  rescue.New(e.store, e.leases, cfg.RescueInterval, cfg.MaxAttempts),
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Stop(ctx)
	})
	return h
}

func (e *env) runStatus(t *testing.T, id string) structs.RunStatus {
	t.Helper()
	r, err := e.store.GetRun(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return r.Status
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: "+msg, args...)
}

func TestWorkerRunsAnalyzeTranscript(t *testing.T) {
	e := newEnv(t)
	e.registry.MustRegister(structs.TypeAnalyzeTranscript, executor.HandlerFunc(func(ctx context.Context, x *executor.Exec, job *structs.Job) error {
		for _, msg := range []string{"parsing", "scoring", "done"} {
			if err := x.Logf(ctx, "%s", msg); err != nil {
				return err
			}
		}
		return nil
	}))

	_, r1 := storetest.SeedJob(t, e.store, "w1", structs.TypeAnalyzeTranscript)
	h := e.start(t, testConfig("worker-a", 1))

	eventually(t, 2*time.Second, func() bool { return e.runStatus(t, r1.ID) == structs.RunSucceeded }, "run %s to succeed", r1.ID)

	logs, _ := e.store.ListLogs(context.Background(), r1.ID, nil, 10)
	if len(logs) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(logs))
	}
	eventually(t, time.Second, func() bool { return h.Status().Succeeded == 1 }, "succeeded counter")
	if st := h.Status(); st.Acquired != 1 || len(st.InFlight) != 0 {
		t.Errorf("status = %+v", st)
	}
}

func TestWorkerBoundsConcurrency(t *testing.T) {
	e := newEnv(t)
	release := make(chan struct{})
	var running, peak atomic.Int32
	e.registry.MustRegister(structs.TypeGeneratePRD, executor.HandlerFunc(func(ctx context.Context, x *executor.Exec, job *structs.Job) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		defer running.Add(-1)
		<-release
		return nil
	}))

	var runs []*structs.Run
	for i := 0; i < 5; i++ {
		_, r := storetest.SeedJob(t, e.store, "w1", structs.TypeGeneratePRD)
		runs = append(runs, r)
	}
	h := e.start(t, testConfig("worker-a", 2))

	eventually(t, 2*time.Second, func() bool { return len(h.Status().InFlight) == 2 }, "two in-flight runs")
	time.Sleep(50 * time.Millisecond)
	if st := h.Status(); len(st.InFlight) != 2 || st.Slots.Current != 2 {
		t.Fatalf("more than two runs in flight: %+v", st)
	}

	close(release)
	for _, r := range runs {
		id := r.ID
		eventually(t, 3*time.Second, func() bool { return e.runStatus(t, id) == structs.RunSucceeded }, "run %s", id)
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency %d", p)
	}
}

func TestWorkerCancelsRunOnLeaseLoss(t *testing.T) {
	e := newEnv(t)
	started := make(chan string, 1)
	e.registry.MustRegister(structs.TypeGeneratePRD, executor.HandlerFunc(func(ctx context.Context, x *executor.Exec, job *structs.Job) error {
		offer(started, x.Run().ID)
		<-ctx.Done()
		return ctx.Err()
	}))

	storetest.SeedJob(t, e.store, "w1", structs.TypeGeneratePRD)
	h := e.start(t, testConfig("worker-a", 1))

	var runID string
	select {
	case runID = <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("run never started")
	}

	// Another party takes the run away.
	if ok, err := e.store.YieldRun(context.Background(), runID, "worker-a"); err != nil || !ok {
		t.Fatalf("steal: ok=%v err=%v", ok, err)
	}

	eventually(t, 2*time.Second, func() bool { return h.Status().LeaseLost == 1 }, "lease loss to be detected")
}

func TestRenewIgnoresFinishedRun(t *testing.T) {
	e := newEnv(t)
	h := e.start(t, testConfig("worker-a", 1))

	var cause atomic.Value
	finished := &task{
		run:    &structs.Run{ID: "finished-run"},
		cancel: func(err error) { cause.Store(err) },
	}

	// Not in flight any more: the failed renew is expected and ignored.
	if err := h.renew(context.Background(), finished); err != nil {
		t.Fatal(err)
	}
	if cause.Load() != nil {
		t.Fatalf("finished run cancelled with %v", cause.Load())
	}

	h.mu.Lock()
	h.inflight[finished.run.ID] = finished
	h.mu.Unlock()
	t.Cleanup(func() {
		h.mu.Lock()
		delete(h.inflight, finished.run.ID)
		h.mu.Unlock()
	})

	if err := h.renew(context.Background(), finished); err != nil {
		t.Fatal(err)
	}
	if got, _ := cause.Load().(error); got != executor.ErrLeaseLost {
		t.Fatalf("in-flight run cancelled with %v", got)
	}
}

func TestWorkerSuspensionFreesSlot(t *testing.T) {
	e := newEnv(t)
	e.registry.MustRegister(structs.TypeCreateFeatureBranch, executor.HandlerFunc(func(ctx context.Context, x *executor.Exec, job *structs.Job) error {
		_, _, err := x.Ask(ctx, "branch", "Branch name?")
		return err
	}))
	e.registry.MustRegister(structs.TypeGeneratePRD, executor.HandlerFunc(func(ctx context.Context, x *executor.Exec, job *structs.Job) error {
		return nil
	}))

	waiting, _ := storetest.SeedJob(t, e.store, "w1", structs.TypeCreateFeatureBranch)
	_, other := storetest.SeedJob(t, e.store, "w1", structs.TypeGeneratePRD)
	h := e.start(t, testConfig("worker-a", 1))

	eventually(t, 2*time.Second, func() bool { return e.runStatus(t, other.ID) == structs.RunSucceeded }, "other run to finish")
	eventually(t, time.Second, func() bool {
		j, err := e.store.GetJob(context.Background(), waiting.ID)
		return err == nil && j.Status == structs.JobWaitingInput
	}, "job to wait for input")
	eventually(t, time.Second, func() bool {
		st := h.Status()
		return st.Suspended == 1 && len(st.InFlight) == 0
	}, "suspended run to release its slot")
}

func TestWorkerShutdownYieldsUnfinishedRuns(t *testing.T) {
	e := newEnv(t)
	started := make(chan string, 1)
	e.registry.MustRegister(structs.TypeGeneratePRD, executor.HandlerFunc(func(ctx context.Context, x *executor.Exec, job *structs.Job) error {
		offer(started, x.Run().ID)
		<-ctx.Done()
		return ctx.Err()
	}))

	storetest.SeedJob(t, e.store, "w1", structs.TypeGeneratePRD)
	cfg := testConfig("worker-a", 1)
	cfg.ShutdownGrace = 50 * time.Millisecond
	h := e.start(t, cfg)

	runID := <-started
	if err := h.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.State() != StateStopped {
		t.Fatalf("state = %s", h.State())
	}

	r, _ := e.store.GetRun(context.Background(), runID)
	if r.Status != structs.RunQueued || r.WorkerID != "" || r.Attempt != 0 {
		t.Errorf("run = %+v", r)
	}
	if st := h.Status(); st.Yielded != 1 {
		t.Errorf("status = %+v", st)
	}

	// Stop is idempotent.
	if err := h.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestWorkerDrainsWithinGrace(t *testing.T) {
	e := newEnv(t)
	started := make(chan string, 1)
	e.registry.MustRegister(structs.TypeGeneratePRD, executor.HandlerFunc(func(ctx context.Context, x *executor.Exec, job *structs.Job) error {
		offer(started, x.Run().ID)
		time.Sleep(50 * time.Millisecond)
		return nil
	}))

	_, run := storetest.SeedJob(t, e.store, "w1", structs.TypeGeneratePRD)
	cfg := testConfig("worker-a", 1)
	cfg.ShutdownGrace = 2 * time.Second
	h := e.start(t, cfg)
	<-started

	if err := h.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := e.runStatus(t, run.ID); got != structs.RunSucceeded {
		t.Errorf("run status = %s, want succeeded", got)
	}
}

func TestWorkersNeverShareARun(t *testing.T) {
	e := newEnv(t)
	var mu sync.Mutex
	executions := map[string]int{}
	e.registry.MustRegister(structs.TypeGeneratePRD, executor.HandlerFunc(func(ctx context.Context, x *executor.Exec, job *structs.Job) error {
		mu.Lock()
		executions[x.Run().ID]++
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return nil
	}))

	var runs []*structs.Run
	for i := 0; i < 12; i++ {
		_, r := storetest.SeedJob(t, e.store, "w1", structs.TypeGeneratePRD)
		runs = append(runs, r)
	}
	for i := 0; i < 3; i++ {
		e.start(t, testConfig(fmt.Sprintf("worker-%d", i), 2))
	}

	for _, r := range runs {
		id := r.ID
		eventually(t, 5*time.Second, func() bool { return e.runStatus(t, id) == structs.RunSucceeded }, "run %s", id)
	}
	mu.Lock()
	defer mu.Unlock()
	for id, n := range executions {
		if n != 1 {
			t.Errorf("run %s executed %d times", id, n)
		}
	}
}

func TestStartFailsWhenStoreUnreachable(t *testing.T) {
	e := newEnv(t)
	if err := e.store.Data().Close(); err != nil {
		t.Fatal(err)
	}
	_, err := Start(context.Background(), testConfig("worker-a", 1), Deps{
		Store:    e.store,
		Leases:   e.leases,
		Executor: executor.New(e.store, e.leases, e.registry),
	})
	if err == nil {
		t.Fatal("expected start to fail")
	}
}

func TestStartValidatesConfig(t *testing.T) {
	e := newEnv(t)
	cfg := testConfig("", 1)
	if _, err := Start(context.Background(), cfg, Deps{Store: e.store, Leases: e.leases, Executor: executor.New(e.store, e.leases, e.registry)}); err == nil {
		t.Fatal("empty worker id should be rejected")
	}
}
