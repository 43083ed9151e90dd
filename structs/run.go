package structs

import "time"

// RunStatus is the lifecycle of one execution attempt.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// IsActive reports whether the run may still make progress.
func (s RunStatus) IsActive() bool {
	return s == RunQueued || s == RunRunning
}

// IsTerminal reports whether s is succeeded, failed or cancelled.
func (s RunStatus) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunCancelled
}

// FailureKind classifies why a run did not succeed.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureConfig    FailureKind = "config"
	FailureTransient FailureKind = "transient"
	FailureExhausted FailureKind = "exhausted"
	FailureCancelled FailureKind = "cancelled"
	FailureLeaseLost FailureKind = "lease_lost"
)

// Run is one execution attempt of a job.
type Run struct {
	ID          string      `json:"id" yaml:"id"`
	JobID       string      `json:"jobId" yaml:"job_id"`
	Status      RunStatus   `json:"status" yaml:"status"`
	Attempt     int         `json:"attempt" yaml:"attempt"`
	WorkerID    string      `json:"workerId,omitempty" yaml:"worker_id,omitempty"`
	HeartbeatAt *time.Time  `json:"heartbeatAt,omitempty" yaml:"heartbeat_at,omitempty"`
	StartedAt   *time.Time  `json:"startedAt,omitempty" yaml:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty" yaml:"completed_at,omitempty"`
	Reason      string      `json:"reason,omitempty" yaml:"reason,omitempty"`
	FailureKind FailureKind `json:"failureKind,omitempty" yaml:"failure_kind,omitempty"`
	Retried     bool        `json:"retried,omitempty" yaml:"retried,omitempty"`
	CreatedAt   time.Time   `json:"createdAt" yaml:"created_at"`
}

// Outcome is the terminal result of a run attempt as reported by the executor.
type Outcome struct {
	Status    RunStatus   `json:"status"`
	Kind      FailureKind `json:"kind,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Artifacts []string    `json:"artifacts,omitempty"`
	// Suspended is set when the run yielded on a pending question instead of ending.
	Suspended bool `json:"suspended,omitempty"`
}
