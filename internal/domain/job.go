package domain

import "time"

// JobStatus represents the current state of a detached job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job kinds.
const (
	JobKindBackfill = "backfill"
)

// JobParams bounds the scope of a backfill job.
type JobParams struct {
	Since string `json:"since,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// Job is the observable record of a detached long-running operation. Records
// live in process memory only; a restart loses them (accepted limitation).
type Job struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Params     JobParams  `json:"params"`
	Status     JobStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     any        `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// BackfillResult summarizes a completed backfill.
type BackfillResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
