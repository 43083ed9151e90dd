package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ncobase/runner/structs"
)

const questionColumns = `id, job_id, run_id, question_key, prompt, choices, answer, skipped, created_at, resolved_at`

// CreateQuestion records a pending question. Questions are unique per job and
// key; asking the same key again returns the stored question.
func (s *Store) CreateQuestion(ctx context.Context, q *structs.PendingQuestion) (*structs.PendingQuestion, error) {
	if existing, err := s.GetQuestionByKey(ctx, q.JobID, q.Key); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now().UTC()
	}

	var choices sql.NullString
	if len(q.Choices) > 0 {
		b, err := json.Marshal(q.Choices)
		if err != nil {
			return nil, fmt.Errorf("store: create question: %w", err)
		}
		choices = sql.NullString{String: string(b), Valid: true}
	}

	_, err := s.exec(ctx, `
		INSERT INTO pending_questions (id, job_id, run_id, question_key, prompt, choices, skipped, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		q.ID, q.JobID, q.RunID, q.Key, q.Prompt, choices, Micros(q.CreatedAt),
	)
	if err != nil {
		if s.d.Dialect().IsDuplicateKey(err) {
			return s.GetQuestionByKey(ctx, q.JobID, q.Key)
		}
		return nil, fmt.Errorf("store: create question: %w", err)
	}
	return q, nil
}

// GetQuestion loads a question by id.
func (s *Store) GetQuestion(ctx context.Context, id string) (*structs.PendingQuestion, error) {
	return s.getQuestion(ctx, `SELECT `+questionColumns+` FROM pending_questions WHERE id = ?`, id)
}

// GetQuestionByKey loads the question a job asked under key.
func (s *Store) GetQuestionByKey(ctx context.Context, jobID, key string) (*structs.PendingQuestion, error) {
	return s.getQuestion(ctx, `SELECT `+questionColumns+` FROM pending_questions WHERE job_id = ? AND question_key = ?`, jobID, key)
}

// ListQuestions returns the questions of a job. With openOnly, resolved
// questions are left out.
func (s *Store) ListQuestions(ctx context.Context, jobID string, openOnly bool) ([]*structs.PendingQuestion, error) {
	q := `SELECT ` + questionColumns + ` FROM pending_questions WHERE job_id = ?`
	if openOnly {
		q += ` AND resolved_at IS NULL`
	}
	q += ` ORDER BY created_at, id`

	rows, err := s.query(ctx, q, jobID)
	if err != nil {
		return nil, fmt.Errorf("store: list questions: %w", err)
	}
	defer rows.Close()

	out := make([]*structs.PendingQuestion, 0)
	for rows.Next() {
		pq, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list questions: %w", err)
		}
		out = append(out, pq)
	}
	return out, rows.Err()
}

// CountOpenQuestions returns the number of unresolved questions of a job.
func (s *Store) CountOpenQuestions(ctx context.Context, jobID string) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM pending_questions WHERE job_id = ? AND resolved_at IS NULL`, jobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count questions: %w", err)
	}
	return n, nil
}

// ResolveQuestion records an answer, or a skip, on a still open question.
// It reports whether this call resolved it.
func (s *Store) ResolveQuestion(ctx context.Context, id, answer string, skipped bool) (bool, error) {
	n, err := s.exec(ctx, `
		UPDATE pending_questions SET answer = ?, skipped = ?, resolved_at = ?
		WHERE id = ? AND resolved_at IS NULL`,
		nullString(answer), boolInt(skipped), Micros(s.now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("store: resolve question: %w", err)
	}
	return n == 1, nil
}

func (s *Store) getQuestion(ctx context.Context, query string, args ...any) (*structs.PendingQuestion, error) {
	pq, err := scanQuestion(s.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get question: %w", err)
	}
	return pq, nil
}

func scanQuestion(sc scanner) (*structs.PendingQuestion, error) {
	var (
		q               structs.PendingQuestion
		choices, answer sql.NullString
		skipped         int
		createdAt       int64
		resolvedAt      sql.NullInt64
	)
	if err := sc.Scan(&q.ID, &q.JobID, &q.RunID, &q.Key, &q.Prompt, &choices, &answer, &skipped, &createdAt, &resolvedAt); err != nil {
		return nil, err
	}
	if choices.Valid && choices.String != "" {
		if err := json.Unmarshal([]byte(choices.String), &q.Choices); err != nil {
			return nil, err
		}
	}
	q.Answer = answer.String
	q.Skipped = skipped != 0
	q.CreatedAt = FromMicros(createdAt)
	q.ResolvedAt = timePtr(resolvedAt)
	return &q, nil
}
