package structs

import "time"

// PendingQuestion is a human-in-the-loop suspension point of a job.
type PendingQuestion struct {
	ID         string     `json:"id"`
	JobID      string     `json:"jobId"`
	RunID      string     `json:"runId"`
	Key        string     `json:"key"`
	Prompt     string     `json:"prompt"`
	Choices    []string   `json:"choices,omitempty"`
	Answer     string     `json:"answer,omitempty"`
	Skipped    bool       `json:"skipped,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

// Resolved reports whether the question was answered or skipped.
func (q *PendingQuestion) Resolved() bool {
	return q.ResolvedAt != nil
}
