package domain

import "time"

// JobState is a snapshot of the single process-wide classification run.
// Mutation happens only inside the orchestrator, under its lock.
type JobState struct {
	Running     bool       `json:"running"`
	StartedAt   *time.Time `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	Processed   int        `json:"processed"`
	Failed      int        `json:"failed"`
	Remaining   int        `json:"remaining"`
	LastError   string     `json:"last_error,omitempty"`
	BatchSize   int        `json:"batch_size"`
	Concurrency int        `json:"concurrency"`
	TaskID      string     `json:"task_id,omitempty"`
}
