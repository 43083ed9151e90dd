package store

import (
	"context"
	"fmt"

	"github.com/ncobase/runner/data"
)

// Timestamps are stored as BIGINT unix microseconds so that every dialect
// compares them the same way.

var portableSchema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id VARCHAR(64) PRIMARY KEY,
		workspace_id VARCHAR(64) NOT NULL,
		job_type VARCHAR(64) NOT NULL,
		input TEXT,
		status VARCHAR(32) NOT NULL,
		error TEXT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_workspace_status ON jobs (workspace_id, status)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id VARCHAR(64) PRIMARY KEY,
		job_id VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 0,
		worker_id VARCHAR(128),
		heartbeat_at BIGINT,
		started_at BIGINT,
		completed_at BIGINT,
		reason TEXT,
		error_kind VARCHAR(32),
		retried INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_status_heartbeat ON runs (status, heartbeat_at)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_job ON runs (job_id)`,
	`CREATE TABLE IF NOT EXISTS run_logs (
		id VARCHAR(64) PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		ts BIGINT NOT NULL,
		level VARCHAR(16) NOT NULL,
		message TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_run_logs_run_ts ON run_logs (run_id, ts)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		id VARCHAR(64) PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		job_id VARCHAR(64) NOT NULL,
		kind VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		uri TEXT,
		content TEXT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts (run_id)`,
	`CREATE TABLE IF NOT EXISTS pending_questions (
		id VARCHAR(64) PRIMARY KEY,
		job_id VARCHAR(64) NOT NULL,
		run_id VARCHAR(64) NOT NULL,
		question_key VARCHAR(128) NOT NULL,
		prompt TEXT NOT NULL,
		choices TEXT,
		answer TEXT,
		skipped INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		resolved_at BIGINT,
		UNIQUE (job_id, question_key)
	)`,
}

// MySQL lacks CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS jobs (
		id VARCHAR(64) PRIMARY KEY,
		workspace_id VARCHAR(64) NOT NULL,
		job_type VARCHAR(64) NOT NULL,
		input LONGTEXT,
		status VARCHAR(32) NOT NULL,
		error TEXT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		KEY idx_jobs_workspace_status (workspace_id, status)
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id VARCHAR(64) PRIMARY KEY,
		job_id VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 0,
		worker_id VARCHAR(128),
		heartbeat_at BIGINT,
		started_at BIGINT,
		completed_at BIGINT,
		reason TEXT,
		error_kind VARCHAR(32),
		retried INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		KEY idx_runs_status_heartbeat (status, heartbeat_at),
		KEY idx_runs_job (job_id)
	)`,
	`CREATE TABLE IF NOT EXISTS run_logs (
		id VARCHAR(64) PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		ts BIGINT NOT NULL,
		level VARCHAR(16) NOT NULL,
		message TEXT NOT NULL,
		KEY idx_run_logs_run_ts (run_id, ts)
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		id VARCHAR(64) PRIMARY KEY,
		run_id VARCHAR(64) NOT NULL,
		job_id VARCHAR(64) NOT NULL,
		kind VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		uri TEXT,
		content LONGTEXT,
		created_at BIGINT NOT NULL,
		KEY idx_artifacts_run (run_id)
	)`,
	`CREATE TABLE IF NOT EXISTS pending_questions (
		id VARCHAR(64) PRIMARY KEY,
		job_id VARCHAR(64) NOT NULL,
		run_id VARCHAR(64) NOT NULL,
		question_key VARCHAR(128) NOT NULL,
		prompt TEXT NOT NULL,
		choices TEXT,
		answer TEXT,
		skipped INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		resolved_at BIGINT,
		UNIQUE KEY uq_questions_job_key (job_id, question_key)
	)`,
}

// Migrate creates the tables and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := portableSchema
	if s.d.Dialect() == data.DialectMySQL {
		stmts = mysqlSchema
	}
	for _, stmt := range stmts {
		if _, err := s.d.Conn(ctx).ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}
