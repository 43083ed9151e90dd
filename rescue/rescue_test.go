package rescue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ncobase/runner/executor"
	"github.com/ncobase/runner/lease"
	"github.com/ncobase/runner/messaging"
	"github.com/ncobase/runner/store"
	"github.com/ncobase/runner/store/storetest"
	"github.com/ncobase/runner/structs"
)

const leaseTimeout = 45 * time.Second

type recorder struct {
	mu    sync.Mutex
	notes []messaging.Notification
}

func (r *recorder) Notify(ctx context.Context, n messaging.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) events() []messaging.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]messaging.Event, len(r.notes))
	for i, n := range r.notes {
		out[i] = n.Event
	}
	return out
}

type fixture struct {
	clock   *storetest.Clock
	store   *store.Store
	leases  *lease.Manager
	sweeper *Sweeper
	notes   *recorder
}

func newFixture(t *testing.T, maxAttempts int) *fixture {
	t.Helper()
	clock := storetest.NewClock()
	s := storetest.New(t, clock.Now)
	leases := lease.NewManager(s, leaseTimeout, lease.WithClock(clock.Now))
	notes := &recorder{}
	return &fixture{
		clock:   clock,
		store:   s,
		leases:  leases,
		sweeper: New(s, leases, time.Minute, maxAttempts, WithNotifier(notes)),
		notes:   notes,
	}
}

func TestStaleRunIsRequeued(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	_, run := storetest.SeedJob(t, f.store, "w1", structs.TypeAnalyzeTranscript)
	f.leases.Acquire(ctx, run.ID, "dead", f.clock.Now())

	// Within the lease window nothing happens.
	f.clock.Advance(leaseTimeout / 2)
	res, err := f.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res != (Result{}) {
		t.Fatalf("fresh lease touched: %+v", res)
	}

	f.clock.Advance(leaseTimeout)
	res, err = f.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Requeued != 1 {
		t.Fatalf("expected one requeue, got %+v", res)
	}
	got, _ := f.store.GetRun(ctx, run.ID)
	if got.Status != structs.RunQueued || got.Attempt != 1 || got.WorkerID != "" || got.HeartbeatAt != nil {
		t.Errorf("run = %+v", got)
	}
}

func TestStaleRunOnLastAttemptFails(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	job, run := storetest.SeedJob(t, f.store, "w1", structs.TypeAnalyzeTranscript)
	f.leases.Acquire(ctx, run.ID, "dead", f.clock.Now())

	f.clock.Advance(2 * leaseTimeout)
	res, err := f.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 {
		t.Fatalf("expected one failure, got %+v", res)
	}

	got, _ := f.store.GetRun(ctx, run.ID)
	if got.Status != structs.RunFailed || got.FailureKind != structs.FailureExhausted || got.Reason == "" {
		t.Errorf("run = %+v", got)
	}
	j, _ := f.store.GetJob(ctx, job.ID)
	if j.Status != structs.JobFailed {
		t.Errorf("job status = %s", j.Status)
	}
	if ev := f.notes.events(); len(ev) != 2 || ev[0] != messaging.EventRunExhausted || ev[1] != messaging.EventJobFailed {
		t.Errorf("notifications = %v", ev)
	}
}

func TestStaleRunOfCancelledJobIsCancelled(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	job, run := storetest.SeedJob(t, f.store, "w1", structs.TypeAnalyzeTranscript)
	f.leases.Acquire(ctx, run.ID, "dead", f.clock.Now())
	f.store.SetJobStatus(ctx, job.ID, structs.JobCancelled, "by user")

	f.clock.Advance(2 * leaseTimeout)
	if _, err := f.sweeper.Sweep(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := f.store.GetRun(ctx, run.ID)
	if got.Status != structs.RunCancelled {
		t.Errorf("run status = %s", got.Status)
	}
}

// A queued run left on a cancelled job, as when a requeue commits just after
// the cancel, is cancelled by the next sweep.
func TestQueuedRunOfCancelledJobIsCancelled(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	job, run := storetest.SeedJob(t, f.store, "w1", structs.TypeAnalyzeTranscript)
	live, liveRun := storetest.SeedJob(t, f.store, "w1", structs.TypeAnalyzeTranscript)
	f.store.SetJobStatus(ctx, job.ID, structs.JobCancelled, "by user")

	res, err := f.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cancelled != 1 {
		t.Fatalf("result = %+v", res)
	}
	got, _ := f.store.GetRun(ctx, run.ID)
	if got.Status != structs.RunCancelled || got.FailureKind != structs.FailureCancelled {
		t.Errorf("run = %+v", got)
	}
	if got, _ := f.store.GetRun(ctx, liveRun.ID); got.Status != structs.RunQueued {
		t.Errorf("run of live job %s touched: %s", live.ID, got.Status)
	}

	if res, _ := f.sweeper.Sweep(ctx); res != (Result{}) {
		t.Errorf("second sweep = %+v", res)
	}
}

func TestRetryIsNotScheduledForCancelledJob(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	job, run := storetest.SeedJob(t, f.store, "w1", structs.TypeGeneratePRD)
	f.leases.Acquire(ctx, run.ID, "w", f.clock.Now())
	f.leases.Release(ctx, run.ID, "w", structs.Outcome{Status: structs.RunFailed, Kind: structs.FailureTransient, Reason: "503"})
	f.store.SetJobStatus(ctx, job.ID, structs.JobCancelled, "by user")

	res, err := f.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Retried != 0 {
		t.Fatalf("result = %+v", res)
	}
	runs, _ := f.store.ListRuns(ctx, job.ID)
	if len(runs) != 1 {
		t.Fatalf("runs = %+v", runs)
	}
}

func TestRetryIsScheduledOnce(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	_, run := storetest.SeedJob(t, f.store, "w1", structs.TypeGeneratePRD)
	f.leases.Acquire(ctx, run.ID, "w", f.clock.Now())
	f.leases.Release(ctx, run.ID, "w", structs.Outcome{Status: structs.RunFailed, Kind: structs.FailureTransient, Reason: "503"})

	other := New(f.store, f.leases, time.Minute, 3)
	r1, err := f.sweeper.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := other.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r1.Retried+r2.Retried != 1 {
		t.Fatalf("retry scheduled %d times", r1.Retried+r2.Retried)
	}

	runs, _ := f.store.ListRuns(ctx, run.JobID)
	if len(runs) != 2 || runs[1].Attempt != 1 || runs[1].Status != structs.RunQueued {
		t.Fatalf("runs = %+v", runs)
	}
}

// A run whose handler always fails is executed exactly maxAttempts times.
func TestRetryBound(t *testing.T) {
	for _, maxAttempts := range []int{1, 2, 3, 5} {
		f := newFixture(t, maxAttempts)
		ctx := context.Background()

		registry := executor.NewRegistry()
		executions := 0
		registry.MustRegister(structs.TypeGeneratePRD, executor.HandlerFunc(func(context.Context, *executor.Exec, *structs.Job) error {
			executions++
			return errors.New("always fails")
		}))
		x := executor.New(f.store, f.leases, registry)

		job, _ := storetest.SeedJob(t, f.store, "w1", structs.TypeGeneratePRD)
		for i := 0; i < maxAttempts*2; i++ {
			queued, err := f.store.ListQueuedRuns(ctx, "", 10)
			if err != nil {
				t.Fatal(err)
			}
			for _, r := range queued {
				if ok, _ := f.leases.Acquire(ctx, r.ID, "w", f.clock.Now()); ok {
					x.Execute(ctx, r, job, "w")
				}
			}
			if _, err := f.sweeper.Sweep(ctx); err != nil {
				t.Fatal(err)
			}
			f.clock.Advance(time.Second)
		}

		if executions != maxAttempts {
			t.Errorf("maxAttempts=%d: executed %d times", maxAttempts, executions)
		}
		runs, _ := f.store.ListRuns(ctx, job.ID)
		if len(runs) != maxAttempts {
			t.Errorf("maxAttempts=%d: %d runs", maxAttempts, len(runs))
		}
		for _, r := range runs {
			if r.Status != structs.RunFailed {
				t.Errorf("run %d not failed: %s", r.Attempt, r.Status)
			}
		}
		j, _ := f.store.GetJob(ctx, job.ID)
		if j.Status != structs.JobFailed {
			t.Errorf("maxAttempts=%d: job status %s", maxAttempts, j.Status)
		}
	}
}

// Worker crashes holding r2; after leaseTimeout plus one rescue interval the
// run is queued at attempt 1 and a second worker completes it.
func TestCrashedWorkerRunIsCompletedByAnother(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	registry := executor.NewRegistry()
	registry.MustRegister(structs.TypeAnalyzeTranscript, executor.HandlerFunc(func(ctx context.Context, e *executor.Exec, job *structs.Job) error {
		return e.Logf(ctx, "done")
	}))
	x := executor.New(f.store, f.leases, registry)

	job, r2 := storetest.SeedJob(t, f.store, "w1", structs.TypeAnalyzeTranscript)
	if ok, _ := f.leases.Acquire(ctx, r2.ID, "worker-1", f.clock.Now()); !ok {
		t.Fatal("acquire failed")
	}

	f.clock.Advance(leaseTimeout + time.Minute)
	if _, err := f.sweeper.Sweep(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ := f.store.GetRun(ctx, r2.ID)
	if got.Status != structs.RunQueued || got.Attempt != 1 {
		t.Fatalf("after rescue: %+v", got)
	}

	if ok, _ := f.leases.Acquire(ctx, r2.ID, "worker-2", f.clock.Now()); !ok {
		t.Fatal("second worker could not acquire")
	}
	out := x.Execute(ctx, got, job, "worker-2")
	if out.Status != structs.RunSucceeded {
		t.Fatalf("outcome %+v", out)
	}
	got, _ = f.store.GetRun(ctx, r2.ID)
	if got.Status != structs.RunSucceeded || got.Attempt != 1 {
		t.Errorf("final run = %+v", got)
	}
}
