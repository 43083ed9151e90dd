package executor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ncobase/runner/lease"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/messaging"
	"github.com/ncobase/runner/store"
	"github.com/ncobase/runner/store/storetest"
	"github.com/ncobase/runner/structs"
)

type fixture struct {
	clock    *storetest.Clock
	store    *store.Store
	leases   *lease.Manager
	registry *Registry
	exec     *Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := storetest.NewClock()
	s := storetest.New(t, clock.Now)
	leases := lease.NewManager(s, 45*time.Second, lease.WithClock(clock.Now))
	registry := NewRegistry()
	return &fixture{
		clock:    clock,
		store:    s,
		leases:   leases,
		registry: registry,
		exec:     New(s, leases, registry),
	}
}

// lease seeds a job of jobType and acquires its run for worker "w".
func (f *fixture) lease(t *testing.T, jobType structs.JobType) (*structs.Job, *structs.Run) {
	t.Helper()
	job, run := storetest.SeedJob(t, f.store, "w1", jobType)
	ok, err := f.leases.Acquire(context.Background(), run.ID, "w", f.clock.Now())
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	return job, run
}

func (f *fixture) run(t *testing.T, id string) *structs.Run {
	t.Helper()
	r, err := f.store.GetRun(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func (f *fixture) job(t *testing.T, id string) *structs.Job {
	t.Helper()
	j, err := f.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func TestExecuteSuccessPersistsLogsAndArtifacts(t *testing.T) {
	f := newFixture(t)
	f.registry.MustRegister(structs.TypeAnalyzeTranscript, HandlerFunc(func(ctx context.Context, e *Exec, job *structs.Job) error {
		for _, msg := range []string{"parsing", "scoring", "done"} {
			if err := e.Logf(ctx, "%s", msg); err != nil {
				return err
			}
		}
		_, err := e.AddArtifact(ctx, "insight", "summary.md", "", "# Summary")
		return err
	}))

	job, run := f.lease(t, structs.TypeAnalyzeTranscript)
	out := f.exec.Execute(context.Background(), run, job, "w")

	if out.Status != structs.RunSucceeded || len(out.Artifacts) != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := f.run(t, run.ID); got.Status != structs.RunSucceeded || got.WorkerID != "" {
		t.Errorf("run = %+v", got)
	}
	if got := f.job(t, job.ID); got.Status != structs.JobCompleted {
		t.Errorf("job status = %s", got.Status)
	}

	logs, _ := f.store.ListLogs(context.Background(), run.ID, nil, 10)
	if len(logs) != 3 || logs[2].Message != "done" {
		t.Errorf("logs = %+v", logs)
	}
	arts, _ := f.store.ListArtifacts(context.Background(), job.ID)
	if len(arts) != 1 || arts[0].ID != out.Artifacts[0] {
		t.Errorf("artifacts = %+v", arts)
	}
}

func TestExecuteWithoutHandlerFailsWithConfigError(t *testing.T) {
	f := newFixture(t)
	job, run := f.lease(t, structs.TypeGeneratePRD)

	out := f.exec.Execute(context.Background(), run, job, "w")
	if out.Status != structs.RunFailed || out.Kind != structs.FailureConfig {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := f.job(t, job.ID); got.Status != structs.JobFailed || got.Error == "" {
		t.Errorf("job = %+v", got)
	}
}

func TestExecuteClassifiesErrors(t *testing.T) {
	tests := []struct {
		name string
		h    HandlerFunc
		kind structs.FailureKind
	}{
		{"transient", func(context.Context, *Exec, *structs.Job) error { return errors.New("upstream 503") }, structs.FailureTransient},
		{"permanent", func(context.Context, *Exec, *structs.Job) error { return Permanent(errors.New("bad input")) }, structs.FailureConfig},
		{"panic", func(context.Context, *Exec, *structs.Job) error { panic("nil map") }, structs.FailureTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.registry.MustRegister(structs.TypeGeneratePRD, tt.h)
			job, run := f.lease(t, structs.TypeGeneratePRD)

			out := f.exec.Execute(context.Background(), run, job, "w")
			if out.Status != structs.RunFailed || out.Kind != tt.kind {
				t.Fatalf("unexpected outcome %+v", out)
			}
			got := f.run(t, run.ID)
			if got.Status != structs.RunFailed || got.FailureKind != tt.kind || got.Attempt != 0 {
				t.Errorf("run = %+v", got)
			}
		})
	}
}

func TestExecuteSuspendsOnQuestion(t *testing.T) {
	f := newFixture(t)
	f.registry.MustRegister(structs.TypeCreateFeatureBranch, HandlerFunc(func(ctx context.Context, e *Exec, job *structs.Job) error {
		answer, skipped, err := e.Ask(ctx, "branch", "Branch name?", "feature/a", "feature/b")
		if err != nil {
			return err
		}
		if skipped {
			answer = "feature/default"
		}
		return e.Logf(ctx, "created %s", answer)
	}))

	ctx := context.Background()
	job, run := f.lease(t, structs.TypeCreateFeatureBranch)

	out := f.exec.Execute(ctx, run, job, "w")
	if !out.Suspended || out.Status != structs.RunQueued {
		t.Fatalf("expected suspension, got %+v", out)
	}
	if got := f.job(t, job.ID); got.Status != structs.JobWaitingInput {
		t.Fatalf("job status = %s", got.Status)
	}
	if got := f.run(t, run.ID); got.Status != structs.RunQueued || got.WorkerID != "" || got.Attempt != 0 {
		t.Fatalf("run = %+v", got)
	}

	// Waiting jobs are not offered to workers.
	if ok, _ := f.leases.Acquire(ctx, run.ID, "w", f.clock.Now()); ok {
		t.Fatal("run of a waiting job must not be acquirable")
	}

	qs, _ := f.store.ListQuestions(ctx, job.ID, true)
	if len(qs) != 1 {
		t.Fatalf("expected one open question, got %d", len(qs))
	}
	f.store.ResolveQuestion(ctx, qs[0].ID, "", true)
	f.store.SetJobStatus(ctx, job.ID, structs.JobPending, "", structs.JobWaitingInput)

	if ok, _ := f.leases.Acquire(ctx, run.ID, "w", f.clock.Now()); !ok {
		t.Fatal("resumed run should be acquirable")
	}
	out = f.exec.Execute(ctx, f.run(t, run.ID), job, "w")
	if out.Status != structs.RunSucceeded {
		t.Fatalf("resumed outcome %+v", out)
	}
	logs, _ := f.store.ListLogs(ctx, run.ID, nil, 10)
	if len(logs) != 1 || logs[0].Message != "created feature/default" {
		t.Errorf("logs = %+v", logs)
	}
	if got := f.run(t, run.ID); got.Attempt != 0 {
		t.Errorf("suspension must not consume an attempt, attempt=%d", got.Attempt)
	}
}

func TestExecuteSuspendAfterEarlyResolveKeepsJobRunnable(t *testing.T) {
	f := newFixture(t)
	f.registry.MustRegister(structs.TypeCreateFeatureBranch, HandlerFunc(func(ctx context.Context, e *Exec, job *structs.Job) error {
		answer, skipped, err := e.Ask(ctx, "branch", "Branch name?")
		var suspend *SuspendError
		if errors.As(err, &suspend) {
			// The answer lands while the handler is still unwinding, before
			// the suspension is written.
			if _, rerr := e.store.ResolveQuestion(ctx, suspend.QuestionID, "", true); rerr != nil {
				return rerr
			}
			if _, rerr := e.store.SetJobStatus(ctx, job.ID, structs.JobPending, "", structs.JobWaitingInput); rerr != nil {
				return rerr
			}
			return err
		}
		if err != nil {
			return err
		}
		if skipped {
			answer = "feature/default"
		}
		return e.Logf(ctx, "created %s", answer)
	}))

	ctx := context.Background()
	job, run := f.lease(t, structs.TypeCreateFeatureBranch)

	out := f.exec.Execute(ctx, run, job, "w")
	if !out.Suspended {
		t.Fatalf("expected suspension, got %+v", out)
	}
	if got := f.job(t, job.ID); got.Status != structs.JobPending {
		t.Fatalf("job with no open question must be pending, got %s", got.Status)
	}
	if got := f.run(t, run.ID); got.Status != structs.RunQueued || got.Attempt != 0 {
		t.Fatalf("run = %+v", got)
	}

	if ok, err := f.leases.Acquire(ctx, run.ID, "w", f.clock.Now()); err != nil || !ok {
		t.Fatalf("run should be acquirable: ok=%v err=%v", ok, err)
	}
	out = f.exec.Execute(ctx, f.run(t, run.ID), job, "w")
	if out.Status != structs.RunSucceeded {
		t.Fatalf("resumed outcome %+v", out)
	}
	if got := f.job(t, job.ID); got.Status != structs.JobCompleted {
		t.Errorf("job status = %s", got.Status)
	}
	logs, _ := f.store.ListLogs(ctx, run.ID, nil, 10)
	if len(logs) != 1 || logs[0].Message != "created feature/default" {
		t.Errorf("logs = %+v", logs)
	}
}

type brokenNotifier struct{}

func (brokenNotifier) Notify(context.Context, messaging.Notification) error {
	return errors.New("broker unavailable")
}

func (brokenNotifier) Close() error { return nil }

func TestAskLogsNotifyFailure(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	l := logger.NewLogger()
	l.SetOutput(&buf)
	f.exec = New(f.store, f.leases, f.registry, WithNotifier(brokenNotifier{}), WithLogger(l))
	f.registry.MustRegister(structs.TypeCreateFeatureBranch, HandlerFunc(func(ctx context.Context, e *Exec, job *structs.Job) error {
		_, _, err := e.Ask(ctx, "branch", "Branch name?")
		return err
	}))

	job, run := f.lease(t, structs.TypeCreateFeatureBranch)
	out := f.exec.Execute(context.Background(), run, job, "w")
	if !out.Suspended {
		t.Fatalf("a failed notification must not prevent suspension, got %+v", out)
	}
	if got := f.job(t, job.ID); got.Status != structs.JobWaitingInput {
		t.Errorf("job status = %s", got.Status)
	}
	if !strings.Contains(buf.String(), "Failed to publish pending question") || !strings.Contains(buf.String(), "broker unavailable") {
		t.Errorf("notify failure not logged: %s", buf.String())
	}
}

func TestExecuteLeaseLostWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.registry.MustRegister(structs.TypeGeneratePRD, HandlerFunc(func(ctx context.Context, e *Exec, job *structs.Job) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	job, run := f.lease(t, structs.TypeGeneratePRD)

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(ErrLeaseLost)

	out := f.exec.Execute(ctx, run, job, "w")
	if out.Kind != structs.FailureLeaseLost {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := f.run(t, run.ID); got.Status != structs.RunRunning || got.WorkerID != "w" {
		t.Errorf("run must be left for the sweeper, got %+v", got)
	}
}

func TestExecuteShutdownYieldsRun(t *testing.T) {
	f := newFixture(t)
	f.registry.MustRegister(structs.TypeGeneratePRD, HandlerFunc(func(ctx context.Context, e *Exec, job *structs.Job) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	job, run := f.lease(t, structs.TypeGeneratePRD)

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(ErrShutdown)

	out := f.exec.Execute(ctx, run, job, "w")
	if out.Status != structs.RunQueued {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := f.run(t, run.ID); got.Status != structs.RunQueued || got.WorkerID != "" {
		t.Errorf("run = %+v", got)
	}
}

func TestExecuteObservesCancellation(t *testing.T) {
	f := newFixture(t)
	f.registry.MustRegister(structs.TypeGeneratePRD, HandlerFunc(func(ctx context.Context, e *Exec, job *structs.Job) error {
		if _, err := f.store.SetJobStatus(ctx, job.ID, structs.JobCancelled, "by user"); err != nil {
			return err
		}
		if e.Cancelled(ctx) {
			return ErrCancelled
		}
		return nil
	}))
	job, run := f.lease(t, structs.TypeGeneratePRD)

	out := f.exec.Execute(context.Background(), run, job, "w")
	if out.Status != structs.RunCancelled || out.Kind != structs.FailureCancelled {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := f.run(t, run.ID); got.Status != structs.RunCancelled {
		t.Errorf("run status = %s", got.Status)
	}
}

func TestRegistryRejectsUnknownAndDuplicate(t *testing.T) {
	r := NewRegistry()
	noop := HandlerFunc(func(context.Context, *Exec, *structs.Job) error { return nil })

	if err := r.Register("render_video", noop); err == nil {
		t.Error("unknown type should be rejected")
	}
	if err := r.Register(structs.TypeGeneratePRD, noop); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(structs.TypeGeneratePRD, noop); err == nil {
		t.Error("duplicate should be rejected")
	}
	if types := r.Types(); len(types) != 1 || types[0] != structs.TypeGeneratePRD {
		t.Errorf("types = %v", types)
	}
}
