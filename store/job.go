package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ncobase/runner/structs"
)

const jobColumns = `id, workspace_id, job_type, input, status, error, created_at, updated_at`

// CreateJob inserts a job. CreatedAt and UpdatedAt default to the store clock.
func (s *Store) CreateJob(ctx context.Context, job *structs.Job) error {
	now := s.now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	if job.Status == "" {
		job.Status = structs.JobPending
	}

	_, err := s.exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.WorkspaceID,
		string(job.Type),
		nullString(string(job.Input)),
		string(job.Status),
		nullString(job.Error),
		Micros(job.CreatedAt),
		Micros(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: create job: %w", err)
	}
	return nil
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*structs.Job, error) {
	row := s.queryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs, optionally scoped to a workspace.
func (s *Store) ListJobs(ctx context.Context, workspaceID string, limit int) ([]*structs.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if workspaceID != "" {
		q += ` WHERE workspace_id = ?`
		args = append(args, workspaceID)
	}
	q += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*structs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list jobs: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetJobStatus moves a job to status if its current status is one of from.
// An empty from matches any non-terminal status. It reports whether the row
// changed.
func (s *Store) SetJobStatus(ctx context.Context, id string, status structs.JobStatus, reason string, from ...structs.JobStatus) (bool, error) {
	if len(from) == 0 {
		from = []structs.JobStatus{structs.JobPending, structs.JobRunning, structs.JobWaitingInput}
	}

	args := []any{string(status), nullString(reason), Micros(s.now()), id}
	for _, f := range from {
		args = append(args, string(f))
	}

	n, err := s.exec(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders(len(from))+`)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("store: set job status: %w", err)
	}
	return n == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (*structs.Job, error) {
	var (
		job                  structs.Job
		jobType, status      string
		input, errMsg        sql.NullString
		createdAt, updatedAt int64
	)
	if err := sc.Scan(&job.ID, &job.WorkspaceID, &jobType, &input, &status, &errMsg, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	job.Type = structs.JobType(jobType)
	job.Status = structs.JobStatus(status)
	if input.Valid {
		job.Input = []byte(input.String)
	}
	job.Error = errMsg.String
	job.CreatedAt = FromMicros(createdAt)
	job.UpdatedAt = FromMicros(updatedAt)
	return &job, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
