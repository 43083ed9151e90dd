package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/messaging"
	"github.com/ncobase/runner/store"
	"github.com/ncobase/runner/structs"
)

// Exec is the execution context handed to a handler for one run attempt.
// Log entries and artifacts are persisted as soon as they are reported.
//
// Handlers are not preempted. They should call Cancelled at their own
// checkpoints and return ErrCancelled when it reports true.
type Exec struct {
	run      *structs.Run
	job      *structs.Job
	store    *store.Store
	notifier messaging.Notifier
	log      *logger.Logger

	mu        sync.Mutex
	artifacts []string
}

// Run returns the run being executed.
func (e *Exec) Run() *structs.Run {
	return e.run
}

// Log persists a log entry for the run.
func (e *Exec) Log(ctx context.Context, level structs.LogLevel, message string) error {
	_, err := e.store.AppendLog(ctx, e.run.ID, level, message)
	return err
}

// Logf persists an info entry built from format and args.
func (e *Exec) Logf(ctx context.Context, format string, args ...any) error {
	return e.Log(ctx, structs.LevelInfo, fmt.Sprintf(format, args...))
}

// AddArtifact persists an artifact of the run and records it in the outcome.
func (e *Exec) AddArtifact(ctx context.Context, kind, name, uri, content string) (*structs.Artifact, error) {
	a := &structs.Artifact{
		RunID:   e.run.ID,
		JobID:   e.job.ID,
		Kind:    kind,
		Name:    name,
		URI:     uri,
		Content: content,
	}
	if err := e.store.CreateArtifact(ctx, a); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.artifacts = append(e.artifacts, a.ID)
	e.mu.Unlock()
	return a, nil
}

// Ask returns the resolution of the job's question under key. While the
// question is unresolved it is recorded and a *SuspendError is returned; the
// handler should return that error so the job waits for input.
func (e *Exec) Ask(ctx context.Context, key, prompt string, choices ...string) (answer string, skipped bool, err error) {
	q, err := e.store.GetQuestionByKey(ctx, e.job.ID, key)
	if err == nil && q.Resolved() {
		return q.Answer, q.Skipped, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", false, err
	}

	if q == nil {
		q, err = e.store.CreateQuestion(ctx, &structs.PendingQuestion{
			JobID:   e.job.ID,
			RunID:   e.run.ID,
			Key:     key,
			Prompt:  prompt,
			Choices: choices,
		})
		if err != nil {
			return "", false, err
		}
		if e.notifier != nil {
			err := e.notifier.Notify(ctx, messaging.Notification{
				Event:       messaging.EventQuestionPending,
				WorkspaceID: e.job.WorkspaceID,
				JobID:       e.job.ID,
				RunID:       e.run.ID,
				Attempt:     e.run.Attempt,
				Message:     prompt,
			})
			if err != nil && e.log != nil {
				e.log.Warn(ctx, "Failed to publish pending question", "job_id", e.job.ID, "question_id", q.ID, "error", err)
			}
		}
	}
	return "", false, &SuspendError{QuestionID: q.ID, Key: key}
}

// Cancelled reports whether the run should stop: its context is done or its
// job has been cancelled.
func (e *Exec) Cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	job, err := e.store.GetJob(ctx, e.job.ID)
	if err != nil {
		return false
	}
	return job.Status == structs.JobCancelled
}

func (e *Exec) artifactIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.artifacts...)
}
