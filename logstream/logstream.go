// Package logstream serves run logs to readers: bounded pages for polling
// clients and a tail that follows a run until it ends.
//
// Tailing is a poll loop over the run store. The store is the only source of
// truth, so delivery latency is bounded by the poll interval.
package logstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/logging/logger"
	"github.com/ncobase/runner/store"
	"github.com/ncobase/runner/structs"
)

// ErrBadCursor is returned for an after cursor that is not RFC 3339.
var ErrBadCursor = errors.New("logstream: invalid cursor")

// Page is one bounded read of a run's log.
type Page struct {
	Entries    []*structs.LogEntry `json:"entries"`
	Status     structs.RunStatus   `json:"status"`
	IsComplete bool                `json:"isComplete"`
	// Cursor is the timestamp of the last entry returned, or the request
	// cursor when the page is empty. Pass it as after for the next page.
	Cursor *time.Time `json:"cursor,omitempty"`
}

// Event is one item of a tail: a log entry, or the completion marker that
// ends the stream.
type Event struct {
	Entry  *structs.LogEntry
	Status structs.RunStatus
}

// Complete reports whether e is the completion marker.
func (e Event) Complete() bool {
	return e.Entry == nil
}

// MarshalJSON encodes an entry as itself and the marker as
// {"type":"complete","status":...}.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Entry != nil {
		return json.Marshal(e.Entry)
	}
	return json.Marshal(struct {
		Type   string            `json:"type"`
		Status structs.RunStatus `json:"status"`
	}{"complete", e.Status})
}

// Gateway reads logs from the run store. It never writes and holds no
// per-run state, so any number of readers can share it.
type Gateway struct {
	store *store.Store
	cfg   *config.LogStream
	log   *logger.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

// New creates a gateway. A nil cfg uses the defaults.
func New(s *store.Store, cfg *config.LogStream, opts ...Option) *Gateway {
	if cfg == nil {
		cfg = config.DefaultLogStream()
	}
	g := &Gateway{store: s, cfg: cfg, log: logger.StdLogger()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ParseCursor parses an RFC 3339 timestamp. An empty string means no cursor.
func ParseCursor(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadCursor, s)
	}
	return &t, nil
}

// Page returns up to limit entries newer than after together with the
// run's current status. limit falls back to the configured page size and is
// capped at the configured maximum.
func (g *Gateway) Page(ctx context.Context, runID string, after *time.Time, limit int) (*Page, error) {
	if limit <= 0 {
		limit = g.cfg.PageLimit
	}
	if limit > g.cfg.MaxPageLimit {
		limit = g.cfg.MaxPageLimit
	}

	run, err := g.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	entries, err := g.store.ListLogs(ctx, runID, after, limit)
	if err != nil {
		return nil, err
	}

	p := &Page{
		Entries:    entries,
		Status:     run.Status,
		IsComplete: !run.Status.IsActive(),
		Cursor:     after,
	}
	if n := len(entries); n > 0 {
		ts := entries[n-1].Timestamp
		p.Cursor = &ts
	}
	return p, nil
}

// Tail follows a run's log from after. Entries are delivered in timestamp
// order; once the run is no longer queued or running, the remaining entries
// are flushed, a completion event is sent and the channel is closed. The
// channel is also closed when ctx ends. An unknown run is reported
// immediately; later read errors are logged and retried on the next poll.
func (g *Gateway) Tail(ctx context.Context, runID string, after *time.Time) (<-chan Event, error) {
	if _, err := g.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	ch := make(chan Event)
	go g.tail(ctx, runID, after, ch)
	return ch, nil
}

func (g *Gateway) tail(ctx context.Context, runID string, cursor *time.Time, ch chan<- Event) {
	defer close(ch)

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		done, next, err := g.step(ctx, runID, cursor, ch)
		cursor = next
		switch {
		case err != nil && ctx.Err() == nil:
			g.log.Warn(ctx, "Log tail poll failed", "run_id", runID, "error", err)
		case done:
			return
		}

		select {
		case <-ctx.Done():
			g.log.Debug(ctx, "Log tail closed by reader", "run_id", runID)
			return
		case <-ticker.C:
		}
	}
}

// step delivers everything newer than cursor. The status is read before the
// entries: a run is only terminal after its handler stopped logging, so a
// terminal status seen first means the entries read after it are final.
func (g *Gateway) step(ctx context.Context, runID string, cursor *time.Time, ch chan<- Event) (bool, *time.Time, error) {
	run, err := g.store.GetRun(ctx, runID)
	if err != nil {
		return false, cursor, err
	}

	batch := g.cfg.MaxPageLimit
	for {
		entries, err := g.store.ListLogs(ctx, runID, cursor, batch)
		if err != nil {
			return false, cursor, err
		}
		for _, e := range entries {
			if !send(ctx, ch, Event{Entry: e}) {
				return true, cursor, nil
			}
			ts := e.Timestamp
			cursor = &ts
		}
		if len(entries) < batch {
			break
		}
	}

	if run.Status.IsActive() {
		return false, cursor, nil
	}
	send(ctx, ch, Event{Status: run.Status})
	return true, cursor, nil
}

func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
