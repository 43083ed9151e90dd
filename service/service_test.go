package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ncobase/runner/executor"
	"github.com/ncobase/runner/lease"
	"github.com/ncobase/runner/service"
	"github.com/ncobase/runner/store"
	"github.com/ncobase/runner/store/storetest"
	"github.com/ncobase/runner/structs"
)

func newService(t *testing.T) (*service.Service, *store.Store) {
	t.Helper()
	s := storetest.New(t, nil)
	return service.New(s), s
}

func TestSubmitCreatesJobAndQueuedRun(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	job, run, err := svc.Submit(ctx, &service.SubmitRequest{
		WorkspaceID: "w1",
		Type:        structs.TypeAnalyzeTranscript,
		Input:       []byte(`{"transcript":"hello"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != structs.JobPending {
		t.Errorf("job status = %s", job.Status)
	}

	runs, err := svc.Runs(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != run.ID || runs[0].Status != structs.RunQueued || runs[0].Attempt != 0 {
		t.Fatalf("runs = %+v", runs)
	}

	got, err := svc.Get(ctx, job.ID)
	if err != nil || string(got.Input) != `{"transcript":"hello"}` {
		t.Errorf("job = %+v err = %v", got, err)
	}
}

func TestSubmitRejectsBadRequests(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  *service.SubmitRequest
		want error
	}{
		{"nil", nil, service.ErrInvalidRequest},
		{"no workspace", &service.SubmitRequest{Type: structs.TypeGeneratePRD}, service.ErrInvalidRequest},
		{"unknown type", &service.SubmitRequest{WorkspaceID: "w1", Type: "send_email"}, service.ErrUnknownJobType},
		{"bad input", &service.SubmitRequest{WorkspaceID: "w1", Type: structs.TypeGeneratePRD, Input: []byte(`{`)}, service.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := svc.Submit(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	jobs, _ := s.ListJobs(ctx, "", 10)
	if len(jobs) != 0 {
		t.Errorf("rejected submissions left %d jobs", len(jobs))
	}
}

func TestRunsOfUnknownJob(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.Runs(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestCancelEndsQueuedRuns(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	job, run, err := svc.Submit(ctx, &service.SubmitRequest{WorkspaceID: "w1", Type: structs.TypeGeneratePRD})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Cancel(ctx, job.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != structs.JobCancelled {
		t.Errorf("job status = %s", got.Status)
	}
	r, _ := s.GetRun(ctx, run.ID)
	if r.Status != structs.RunCancelled || r.FailureKind != structs.FailureCancelled {
		t.Errorf("run = %+v", r)
	}

	if _, err := svc.Cancel(ctx, job.ID, ""); !errors.Is(err, service.ErrJobFinished) {
		t.Errorf("second cancel err = %v", err)
	}
	if _, err := svc.Cancel(ctx, "missing", ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown job err = %v", err)
	}
}

func askQuestion(t *testing.T, s *store.Store, job *structs.Job, run *structs.Run, key string, choices ...string) *structs.PendingQuestion {
	t.Helper()
	ctx := context.Background()
	q, err := s.CreateQuestion(ctx, &structs.PendingQuestion{JobID: job.ID, RunID: run.ID, Key: key, Prompt: key + "?", Choices: choices})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetJobStatus(ctx, job.ID, structs.JobWaitingInput, ""); err != nil {
		t.Fatal(err)
	}
	return q
}

func TestAnswerResumesJobWhenNoQuestionsRemain(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	job, run := storetest.SeedJob(t, s, "w1", structs.TypeCreateFeatureBranch)

	q1 := askQuestion(t, s, job, run, "branch", "main", "develop")
	q2 := askQuestion(t, s, job, run, "reviewer")

	if _, err := svc.Answer(ctx, q1.ID, "release"); !errors.Is(err, service.ErrInvalidRequest) {
		t.Fatalf("answer outside choices: err = %v", err)
	}
	if _, err := svc.Answer(ctx, q1.ID, ""); !errors.Is(err, service.ErrInvalidRequest) {
		t.Fatalf("empty answer: err = %v", err)
	}

	got, err := svc.Answer(ctx, q1.ID, "develop")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Resolved() || got.Answer != "develop" {
		t.Errorf("question = %+v", got)
	}
	if j, _ := svc.Get(ctx, job.ID); j.Status != structs.JobWaitingInput {
		t.Errorf("job resumed with a question still open: %s", j.Status)
	}

	if _, err := svc.Answer(ctx, q1.ID, "main"); !errors.Is(err, service.ErrQuestionResolved) {
		t.Errorf("second answer err = %v", err)
	}

	if _, err := svc.Skip(ctx, q2.ID); err != nil {
		t.Fatal(err)
	}
	if j, _ := svc.Get(ctx, job.ID); j.Status != structs.JobPending {
		t.Errorf("job status = %s, want pending", j.Status)
	}

	open, err := svc.Questions(ctx, job.ID, true)
	if err != nil || len(open) != 0 {
		t.Errorf("open questions = %v err = %v", open, err)
	}
	all, _ := svc.Questions(ctx, job.ID, false)
	if len(all) != 2 {
		t.Fatalf("questions = %+v", all)
	}
	for _, q := range all {
		if q.ID == q2.ID && !q.Skipped {
			t.Errorf("skipped question = %+v", q)
		}
	}
}

func TestSkipLetsSuspendedRunComplete(t *testing.T) {
	clock := storetest.NewClock()
	s := storetest.New(t, clock.Now)
	svc := service.New(s)
	leases := lease.NewManager(s, time.Minute, lease.WithClock(clock.Now))
	reg := executor.NewRegistry()
	reg.MustRegister(structs.TypeCreateFeatureBranch, executor.HandlerFunc(func(ctx context.Context, x *executor.Exec, job *structs.Job) error {
		name, skipped, err := x.Ask(ctx, "branch", "Branch name?")
		if err != nil {
			return err
		}
		if skipped {
			name = "feature/default"
		}
		return x.Logf(ctx, "created %s", name)
	}))
	exec := executor.New(s, leases, reg)
	ctx := context.Background()

	job, run, err := svc.Submit(ctx, &service.SubmitRequest{WorkspaceID: "w1", Type: structs.TypeCreateFeatureBranch})
	if err != nil {
		t.Fatal(err)
	}

	execute := func() structs.Outcome {
		t.Helper()
		if ok, err := leases.Acquire(ctx, run.ID, "w", clock.Now()); err != nil || !ok {
			t.Fatalf("acquire: ok=%v err=%v", ok, err)
		}
		r, _ := s.GetRun(ctx, run.ID)
		return exec.Execute(ctx, r, job, "w")
	}

	if out := execute(); !out.Suspended {
		t.Fatalf("expected suspension, got %+v", out)
	}
	if j, _ := svc.Get(ctx, job.ID); j.Status != structs.JobWaitingInput {
		t.Fatalf("job status = %s", j.Status)
	}

	qs, _ := svc.Questions(ctx, job.ID, true)
	if len(qs) != 1 {
		t.Fatalf("open questions = %d", len(qs))
	}
	if _, err := svc.Skip(ctx, qs[0].ID); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Second)
	if out := execute(); out.Status != structs.RunSucceeded {
		t.Fatalf("resumed outcome = %+v", out)
	}
	r, _ := s.GetRun(ctx, run.ID)
	if r.Attempt != 0 || r.Status != structs.RunSucceeded {
		t.Errorf("run = %+v", r)
	}
	if j, _ := svc.Get(ctx, job.ID); j.Status != structs.JobCompleted {
		t.Errorf("job status = %s", j.Status)
	}
}

func TestStats(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, _, err := svc.Submit(ctx, &service.SubmitRequest{WorkspaceID: "w1", Type: structs.TypeGeneratePRD}); err != nil {
			t.Fatal(err)
		}
	}
	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats[structs.RunQueued] != 3 || stats[structs.RunSucceeded] != 0 {
		t.Errorf("stats = %v", stats)
	}
}
