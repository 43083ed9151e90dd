// Package messaging publishes run notifications to an external collaborator.
//
// Backends: log (default), kafka, rabbitmq and redis. Broker backends are
// wrapped in a circuit breaker so a dead broker costs one fast failure per
// notification instead of a full publish timeout.
package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event names a notification.
type Event string

const (
	EventRunExhausted    Event = "run.exhausted"
	EventJobFailed       Event = "job.failed"
	EventQuestionPending Event = "question.pending"
)

// Notification is the payload published for an event.
type Notification struct {
	ID          string    `json:"id"`
	Event       Event     `json:"event"`
	WorkspaceID string    `json:"workspaceId,omitempty"`
	JobID       string    `json:"jobId"`
	RunID       string    `json:"runId,omitempty"`
	Attempt     int       `json:"attempt"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Close() error
}

// encode fills defaults and marshals n.
func encode(n *Notification) ([]byte, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return json.Marshal(n)
}
