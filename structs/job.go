// Package structs defines the job, run and log domain models.
package structs

import (
	"encoding/json"
	"time"
)

// JobStatus is the outermost lifecycle of a job.
type JobStatus string

const (
	JobPending      JobStatus = "pending"
	JobRunning      JobStatus = "running"
	JobWaitingInput JobStatus = "waiting_input"
	JobCompleted    JobStatus = "completed"
	JobFailed       JobStatus = "failed"
	JobCancelled    JobStatus = "cancelled"
)

// IsTerminal reports whether no further automatic transition happens.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// JobType is the closed set of operations a job can request.
type JobType string

const (
	TypeAnalyzeTranscript       JobType = "analyze_transcript"
	TypeGeneratePRD             JobType = "generate_prd"
	TypeGenerateDesignBrief     JobType = "generate_design_brief"
	TypeGenerateEngineeringSpec JobType = "generate_engineering_spec"
	TypeGenerateGTMBrief        JobType = "generate_gtm_brief"
	TypeRunJuryEvaluation       JobType = "run_jury_evaluation"
	TypeCreateFeatureBranch     JobType = "create_feature_branch"
)

// JobTypes lists every supported job type.
var JobTypes = []JobType{
	TypeAnalyzeTranscript,
	TypeGeneratePRD,
	TypeGenerateDesignBrief,
	TypeGenerateEngineeringSpec,
	TypeGenerateGTMBrief,
	TypeRunJuryEvaluation,
	TypeCreateFeatureBranch,
}

// Valid reports whether t belongs to the enumerated set.
func (t JobType) Valid() bool {
	for _, known := range JobTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Job is a unit of requested work.
type Job struct {
	ID          string          `json:"id" yaml:"id"`
	WorkspaceID string          `json:"workspaceId" yaml:"workspace_id"`
	Type        JobType         `json:"type" yaml:"type"`
	Input       json.RawMessage `json:"input,omitempty" yaml:"-"`
	Status      JobStatus       `json:"status" yaml:"status"`
	Error       string          `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt   time.Time       `json:"createdAt" yaml:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" yaml:"updated_at"`
}
