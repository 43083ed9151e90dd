// Package service is the job submission and status surface used by the
// HTTP server and the CLI.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/store"
	"github.com/ncobase/runner/structs"
)

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrUnknownJobType   = errors.New("unknown job type")
	ErrJobFinished      = errors.New("job already finished")
	ErrQuestionResolved = errors.New("question already resolved")
)

// DefaultListLimit bounds job listings without an explicit limit.
const DefaultListLimit = 50

// SubmitRequest creates a job.
type SubmitRequest struct {
	WorkspaceID string          `json:"workspaceId" validate:"required,max=128"`
	Type        structs.JobType `json:"type" validate:"required"`
	Input       json.RawMessage `json:"input,omitempty"`
}

// Service wraps the run store with the rules of the external surface.
type Service struct {
	store    *store.Store
	validate *validator.Validate
	log      *logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a service over s.
func New(s *store.Store, opts ...Option) *Service {
	svc := &Service{
		store:    s,
		validate: validator.New(),
		log:      logger.StdLogger(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Submit creates a pending job and its first queued run, attempt 0, in one
// transaction. Unknown job types are rejected here rather than at execution.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*structs.Job, *structs.Run, error) {
	if req == nil {
		return nil, nil, ErrInvalidRequest
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if !req.Type.Valid() {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownJobType, req.Type)
	}

	input := req.Input
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}
	if !json.Valid(input) {
		return nil, nil, fmt.Errorf("%w: input is not valid JSON", ErrInvalidRequest)
	}

	job := &structs.Job{
		ID:          uuid.NewString(),
		WorkspaceID: req.WorkspaceID,
		Type:        req.Type,
		Input:       input,
		Status:      structs.JobPending,
	}
	run := &structs.Run{
		ID:     uuid.NewString(),
		JobID:  job.ID,
		Status: structs.RunQueued,
	}

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.store.CreateJob(ctx, job); err != nil {
			return err
		}
		return s.store.CreateRun(ctx, run)
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info(ctx, "Job submitted", "job_id", job.ID, "run_id", run.ID, "job_type", job.Type, "workspace_id", job.WorkspaceID)
	return job, run, nil
}

// Get returns a job.
func (s *Service) Get(ctx context.Context, jobID string) (*structs.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// Jobs lists the most recent jobs of a workspace, or of all workspaces.
func (s *Service) Jobs(ctx context.Context, workspaceID string, limit int) ([]*structs.Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.store.ListJobs(ctx, workspaceID, limit)
}

// Runs returns the run history of a job, ordered by start time.
func (s *Service) Runs(ctx context.Context, jobID string) ([]*structs.Run, error) {
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.ListRuns(ctx, jobID)
}

// Run returns a run.
func (s *Service) Run(ctx context.Context, runID string) (*structs.Run, error) {
	return s.store.GetRun(ctx, runID)
}

// Cancel marks a job cancelled and ends its queued runs. A run already
// executing is not interrupted: its handler sees the cancellation at its
// next checkpoint and the run then ends cancelled.
func (s *Service) Cancel(ctx context.Context, jobID, reason string) (*structs.Job, error) {
	if reason == "" {
		reason = "cancelled by request"
	}

	var cancelled int64
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.store.SetJobStatus(ctx, jobID, structs.JobCancelled, reason)
		if err != nil {
			return err
		}
		if !ok {
			job, err := s.store.GetJob(ctx, jobID)
			if err != nil {
				return err
			}
			return fmt.Errorf("%w: %s", ErrJobFinished, job.Status)
		}
		cancelled, err = s.store.CancelQueuedRuns(ctx, jobID, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "Job cancelled", "job_id", jobID, "queued_runs_cancelled", cancelled)
	return s.store.GetJob(ctx, jobID)
}

// Questions returns the questions of a job; openOnly leaves out resolved
// ones.
func (s *Service) Questions(ctx context.Context, jobID string, openOnly bool) ([]*structs.PendingQuestion, error) {
	if _, err := s.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.ListQuestions(ctx, jobID, openOnly)
}

// Answer resolves a question with answer. A question offering choices only
// accepts one of them.
func (s *Service) Answer(ctx context.Context, questionID, answer string) (*structs.PendingQuestion, error) {
	if answer == "" {
		return nil, fmt.Errorf("%w: answer is required", ErrInvalidRequest)
	}
	return s.resolve(ctx, questionID, answer, false)
}

// Skip resolves a question without an answer.
func (s *Service) Skip(ctx context.Context, questionID string) (*structs.PendingQuestion, error) {
	return s.resolve(ctx, questionID, "", true)
}

// resolve records the resolution and, once the job has no open question
// left, moves it from waiting_input back to pending so its run is offered
// to workers again.
func (s *Service) resolve(ctx context.Context, questionID, answer string, skipped bool) (*structs.PendingQuestion, error) {
	var resumed bool
	var q *structs.PendingQuestion
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		q, err = s.store.GetQuestion(ctx, questionID)
		if err != nil {
			return err
		}
		if q.Resolved() {
			return ErrQuestionResolved
		}
		if !skipped && len(q.Choices) > 0 && !slices.Contains(q.Choices, answer) {
			return fmt.Errorf("%w: answer must be one of %v", ErrInvalidRequest, q.Choices)
		}

		ok, err := s.store.ResolveQuestion(ctx, questionID, answer, skipped)
		if err != nil {
			return err
		}
		if !ok {
			return ErrQuestionResolved
		}

		open, err := s.store.CountOpenQuestions(ctx, q.JobID)
		if err != nil {
			return err
		}
		if open == 0 {
			resumed, err = s.store.SetJobStatus(ctx, q.JobID, structs.JobPending, "", structs.JobWaitingInput)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "Question resolved", "question_id", questionID, "job_id", q.JobID, "skipped", skipped, "job_resumed", resumed)
	return s.store.GetQuestion(ctx, questionID)
}

// Stats returns the number of runs per status.
func (s *Service) Stats(ctx context.Context) (map[structs.RunStatus]int64, error) {
	return s.store.CountRunsByStatus(ctx)
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
