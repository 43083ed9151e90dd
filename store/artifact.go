package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ncobase/runner/structs"
)

// CreateArtifact persists an artifact produced by a run.
func (s *Store) CreateArtifact(ctx context.Context, a *structs.Artifact) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}

	_, err := s.exec(ctx, `
		INSERT INTO artifacts (id, run_id, job_id, kind, name, uri, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, a.JobID, a.Kind, a.Name, nullString(a.URI), nullString(a.Content), Micros(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("store: create artifact: %w", err)
	}
	return nil
}

// ListArtifacts returns the artifacts of a job in creation order.
func (s *Store) ListArtifacts(ctx context.Context, jobID string) ([]*structs.Artifact, error) {
	rows, err := s.query(ctx, `
		SELECT id, run_id, job_id, kind, name, uri, content, created_at FROM artifacts
		WHERE job_id = ? ORDER BY created_at, id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*structs.Artifact
	for rows.Next() {
		var (
			a            structs.Artifact
			uri, content sql.NullString
			createdAt    int64
		)
		if err := rows.Scan(&a.ID, &a.RunID, &a.JobID, &a.Kind, &a.Name, &uri, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("store: list artifacts: %w", err)
		}
		a.URI = uri.String
		a.Content = content.String
		a.CreatedAt = FromMicros(createdAt)
		out = append(out, &a)
	}
	return out, rows.Err()
}
