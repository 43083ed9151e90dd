package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ncobase/runner/structs"
)

const runColumns = `id, job_id, status, attempt, worker_id, heartbeat_at, started_at, completed_at, reason, error_kind, retried, created_at`

// eligibleJob restricts runs to jobs the poller may still drive.
const eligibleJob = `job_id IN (SELECT id FROM jobs WHERE status IN ('pending', 'running'))`

// liveJob restricts runs to jobs that have not reached a terminal status.
const liveJob = `job_id IN (SELECT id FROM jobs WHERE status IN ('pending', 'running', 'waiting_input'))`

// CreateRun inserts a run row. CreatedAt defaults to the store clock.
func (s *Store) CreateRun(ctx context.Context, run *structs.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now().UTC()
	}
	if run.Status == "" {
		run.Status = structs.RunQueued
	}

	_, err := s.exec(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.JobID,
		string(run.Status),
		run.Attempt,
		nullString(run.WorkerID),
		nullMicros(run.HeartbeatAt),
		nullMicros(run.StartedAt),
		nullMicros(run.CompletedAt),
		nullString(run.Reason),
		nullString(string(run.FailureKind)),
		boolInt(run.Retried),
		Micros(run.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*structs.Run, error) {
	row := s.queryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the run history of a job ordered by start time. Runs that
// never started follow, ordered by creation.
func (s *Store) ListRuns(ctx context.Context, jobID string) ([]*structs.Run, error) {
	return s.listRuns(ctx, `
		SELECT `+runColumns+` FROM runs WHERE job_id = ?
		ORDER BY CASE WHEN started_at IS NULL THEN 1 ELSE 0 END, started_at, created_at, id`,
		jobID,
	)
}

// ListQueuedRuns returns up to limit queued runs whose job is still eligible,
// oldest first. An empty workspaceID matches every workspace.
func (s *Store) ListQueuedRuns(ctx context.Context, workspaceID string, limit int) ([]*structs.Run, error) {
	if limit <= 0 {
		return nil, nil
	}
	if workspaceID == "" {
		return s.listRuns(ctx, `
			SELECT `+runColumns+` FROM runs
			WHERE status = 'queued' AND `+eligibleJob+`
			ORDER BY created_at, id LIMIT ?`,
			limit,
		)
	}
	return s.listRuns(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE status = 'queued'
		  AND job_id IN (SELECT id FROM jobs WHERE status IN ('pending', 'running') AND workspace_id = ?)
		ORDER BY created_at, id LIMIT ?`,
		workspaceID, limit,
	)
}

// ListStaleRuns returns running runs whose heartbeat is older than cutoff.
func (s *Store) ListStaleRuns(ctx context.Context, cutoff time.Time, limit int) ([]*structs.Run, error) {
	return s.listRuns(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE status = 'running' AND (heartbeat_at IS NULL OR heartbeat_at < ?)
		ORDER BY heartbeat_at, id LIMIT ?`,
		Micros(cutoff), limit,
	)
}

// ListRetryableRuns returns failed transient runs that have not been retried.
func (s *Store) ListRetryableRuns(ctx context.Context, limit int) ([]*structs.Run, error) {
	return s.listRuns(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE status = 'failed' AND error_kind = 'transient' AND retried = 0
		ORDER BY completed_at, id LIMIT ?`,
		limit,
	)
}

// ListRunsByWorker returns the runs currently leased by workerID.
func (s *Store) ListRunsByWorker(ctx context.Context, workerID string) ([]*structs.Run, error) {
	return s.listRuns(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE status = 'running' AND worker_id = ?
		ORDER BY started_at, id`,
		workerID,
	)
}

// AcquireRun leases a run to workerID. It succeeds only if the run is queued,
// or running with a heartbeat older than staleBefore, and its job is still
// eligible. It reports whether this call won the lease.
func (s *Store) AcquireRun(ctx context.Context, id, workerID string, now, staleBefore time.Time) (bool, error) {
	n, err := s.exec(ctx, `
		UPDATE runs
		SET status = 'running', worker_id = ?, heartbeat_at = ?, started_at = COALESCE(started_at, ?)
		WHERE id = ?
		  AND (status = 'queued' OR (status = 'running' AND (heartbeat_at IS NULL OR heartbeat_at < ?)))
		  AND `+eligibleJob,
		workerID, Micros(now), Micros(now), id, Micros(staleBefore),
	)
	if err != nil {
		return false, fmt.Errorf("store: acquire run: %w", err)
	}
	return n == 1, nil
}

// RenewRun moves the heartbeat forward while workerID still holds the lease.
func (s *Store) RenewRun(ctx context.Context, id, workerID string, now time.Time) (bool, error) {
	n, err := s.exec(ctx, `
		UPDATE runs SET heartbeat_at = ?
		WHERE id = ? AND worker_id = ? AND status = 'running'`,
		Micros(now), id, workerID,
	)
	if err != nil {
		return false, fmt.Errorf("store: renew run: %w", err)
	}
	return n == 1, nil
}

// ReleaseRun writes the terminal status of a leased run and clears the lease.
func (s *Store) ReleaseRun(ctx context.Context, id, workerID string, status structs.RunStatus, kind structs.FailureKind, reason string, now time.Time) (bool, error) {
	n, err := s.exec(ctx, `
		UPDATE runs
		SET status = ?, error_kind = ?, reason = ?, completed_at = ?, worker_id = NULL, heartbeat_at = NULL
		WHERE id = ? AND worker_id = ? AND status = 'running'`,
		string(status), nullString(string(kind)), nullString(reason), Micros(now), id, workerID,
	)
	if err != nil {
		return false, fmt.Errorf("store: release run: %w", err)
	}
	return n == 1, nil
}

// YieldRun hands a leased run back to the queue without touching attempt.
func (s *Store) YieldRun(ctx context.Context, id, workerID string) (bool, error) {
	n, err := s.exec(ctx, `
		UPDATE runs SET status = 'queued', worker_id = NULL, heartbeat_at = NULL
		WHERE id = ? AND worker_id = ? AND status = 'running'`,
		id, workerID,
	)
	if err != nil {
		return false, fmt.Errorf("store: yield run: %w", err)
	}
	return n == 1, nil
}

// RequeueStaleRun puts a stale run back in the queue with attempt+1. The
// write only applies while the run is still at attempt and still stale, and
// its job is not terminal.
func (s *Store) RequeueStaleRun(ctx context.Context, id string, attempt int, cutoff time.Time) (bool, error) {
	n, err := s.exec(ctx, `
		UPDATE runs
		SET status = 'queued', attempt = attempt + 1, worker_id = NULL, heartbeat_at = NULL
		WHERE id = ? AND status = 'running' AND attempt = ?
		  AND (heartbeat_at IS NULL OR heartbeat_at < ?)
		  AND `+liveJob,
		id, attempt, Micros(cutoff),
	)
	if err != nil {
		return false, fmt.Errorf("store: requeue stale run: %w", err)
	}
	return n == 1, nil
}

// FailStaleRun ends a stale run with a terminal status, kind and reason,
// under the same conditions as RequeueStaleRun.
func (s *Store) FailStaleRun(ctx context.Context, id string, attempt int, cutoff time.Time, status structs.RunStatus, kind structs.FailureKind, reason string) (bool, error) {
	n, err := s.exec(ctx, `
		UPDATE runs
		SET status = ?, error_kind = ?, reason = ?, completed_at = ?, worker_id = NULL, heartbeat_at = NULL
		WHERE id = ? AND status = 'running' AND attempt = ?
		  AND (heartbeat_at IS NULL OR heartbeat_at < ?)`,
		string(status), string(kind), reason, Micros(s.now()), id, attempt, Micros(cutoff),
	)
	if err != nil {
		return false, fmt.Errorf("store: fail stale run: %w", err)
	}
	return n == 1, nil
}

// MarkRetried flags a failed run as handled by the retry scheduler. Only the
// first caller wins.
func (s *Store) MarkRetried(ctx context.Context, id string) (bool, error) {
	n, err := s.exec(ctx, `UPDATE runs SET retried = 1 WHERE id = ? AND retried = 0`, id)
	if err != nil {
		return false, fmt.Errorf("store: mark retried: %w", err)
	}
	return n == 1, nil
}

// CancelQueuedRuns ends every queued run of a job as cancelled.
func (s *Store) CancelQueuedRuns(ctx context.Context, jobID, reason string) (int64, error) {
	n, err := s.exec(ctx, `
		UPDATE runs SET status = 'cancelled', error_kind = 'cancelled', reason = ?, completed_at = ?
		WHERE job_id = ? AND status = 'queued'`,
		reason, Micros(s.now()), jobID,
	)
	if err != nil {
		return 0, fmt.Errorf("store: cancel queued runs: %w", err)
	}
	return n, nil
}

// CancelOrphanedRuns ends queued runs whose job already reached a terminal
// status. Such runs are never offered to a worker.
func (s *Store) CancelOrphanedRuns(ctx context.Context, reason string) (int64, error) {
	n, err := s.exec(ctx, `
		UPDATE runs SET status = 'cancelled', error_kind = 'cancelled', reason = ?, completed_at = ?
		WHERE status = 'queued'
		  AND job_id IN (SELECT id FROM jobs WHERE status IN ('completed', 'failed', 'cancelled'))`,
		reason, Micros(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("store: cancel orphaned runs: %w", err)
	}
	return n, nil
}

// CountRunsByStatus returns the number of runs per status.
func (s *Store) CountRunsByStatus(ctx context.Context) (map[structs.RunStatus]int64, error) {
	rows, err := s.query(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("store: count runs: %w", err)
	}
	defer rows.Close()

	stats := map[structs.RunStatus]int64{
		structs.RunQueued:    0,
		structs.RunRunning:   0,
		structs.RunSucceeded: 0,
		structs.RunFailed:    0,
		structs.RunCancelled: 0,
	}
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("store: count runs: %w", err)
		}
		stats[structs.RunStatus(status)] = n
	}
	return stats, rows.Err()
}

func (s *Store) listRuns(ctx context.Context, query string, args ...any) ([]*structs.Run, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*structs.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list runs: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(sc scanner) (*structs.Run, error) {
	var (
		run                               structs.Run
		status                            string
		workerID, reason, kind            sql.NullString
		heartbeatAt, startedAt, completed sql.NullInt64
		retried                           int
		createdAt                         int64
	)
	if err := sc.Scan(
		&run.ID, &run.JobID, &status, &run.Attempt, &workerID, &heartbeatAt,
		&startedAt, &completed, &reason, &kind, &retried, &createdAt,
	); err != nil {
		return nil, err
	}
	run.Status = structs.RunStatus(status)
	run.WorkerID = workerID.String
	run.HeartbeatAt = timePtr(heartbeatAt)
	run.StartedAt = timePtr(startedAt)
	run.CompletedAt = timePtr(completed)
	run.Reason = reason.String
	run.FailureKind = structs.FailureKind(kind.String)
	run.Retried = retried != 0
	run.CreatedAt = FromMicros(createdAt)
	return &run, nil
}
