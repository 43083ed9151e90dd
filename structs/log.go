package structs

import "time"

// LogLevel of a run log entry.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogEntry is an append-only record tied to a run.
type LogEntry struct {
	ID        string    `json:"id"`
	RunID     string    `json:"runId"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}

// Artifact is a result object produced by a job handler.
type Artifact struct {
	ID        string    `json:"id"`
	RunID     string    `json:"runId"`
	JobID     string    `json:"jobId"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	URI       string    `json:"uri,omitempty"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
