package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ncobase/runner/structs"
)

// AppendLog persists one log entry for a run. Timestamps are strictly
// increasing per run: an entry written within the same microsecond as the
// previous one is stamped one microsecond later.
func (s *Store) AppendLog(ctx context.Context, runID string, level structs.LogLevel, message string) (*structs.LogEntry, error) {
	entry := &structs.LogEntry{
		ID:      uuid.NewString(),
		RunID:   runID,
		Level:   level,
		Message: message,
	}

	err := s.WithTx(ctx, func(ctx context.Context) error {
		var last sql.NullInt64
		if err := s.queryRow(ctx, `SELECT MAX(ts) FROM run_logs WHERE run_id = ?`, runID).Scan(&last); err != nil {
			return err
		}

		ts := Micros(s.now())
		if last.Valid && ts <= last.Int64 {
			ts = last.Int64 + 1
		}
		entry.Timestamp = FromMicros(ts)

		_, err := s.exec(ctx, `
			INSERT INTO run_logs (id, run_id, ts, level, message)
			VALUES (?, ?, ?, ?, ?)`,
			entry.ID, runID, ts, string(level), message,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: append log: %w", err)
	}
	return entry, nil
}

// ListLogs returns up to limit entries of a run newer than after, in
// timestamp order. A nil after starts from the beginning.
func (s *Store) ListLogs(ctx context.Context, runID string, after *time.Time, limit int) ([]*structs.LogEntry, error) {
	var cursor int64 = -1
	if after != nil {
		cursor = Micros(*after)
	}

	rows, err := s.query(ctx, `
		SELECT id, run_id, ts, level, message FROM run_logs
		WHERE run_id = ? AND ts > ?
		ORDER BY ts, id LIMIT ?`,
		runID, cursor, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*structs.LogEntry, 0)
	for rows.Next() {
		var (
			e     structs.LogEntry
			ts    int64
			level string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &ts, &level, &e.Message); err != nil {
			return nil, fmt.Errorf("store: list logs: %w", err)
		}
		e.Timestamp = FromMicros(ts)
		e.Level = structs.LogLevel(level)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
