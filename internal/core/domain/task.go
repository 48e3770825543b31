package domain

import "time"

type TaskStatus string

const (
	TaskStatusQueued   TaskStatus = "queued"
	TaskStatusRunning  TaskStatus = "running"
	TaskStatusFinished TaskStatus = "finished"
	TaskStatusFailed   TaskStatus = "failed"
)

// Task is the observability record for one background run. The cursor field
// makes force (full-rescan) runs resumable after a restart.
type Task struct {
	TaskID         string     `json:"task_id" db:"task_id"`
	TaskType       string     `json:"task_type" db:"task_type"`
	Status         TaskStatus `json:"status" db:"status"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	StartedAt      *time.Time `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at" db:"finished_at"`
	Message        string     `json:"message" db:"message"`
	Result         TaskResult `json:"result" db:"-"`
	CursorFullName string     `json:"cursor_full_name" db:"cursor_full_name"`
}

// TaskResult summarises a finished run.
type TaskResult struct {
	Processed  int `json:"processed"`
	Classified int `json:"classified"`
	Failed     int `json:"failed"`
}

// TaskUpdate carries the optional fields of a task status transition.
// Nil pointers leave the stored value untouched.
type TaskUpdate struct {
	Status         TaskStatus
	StartedAt      *time.Time
	FinishedAt     *time.Time
	Message        *string
	Result         *TaskResult
	CursorFullName *string
}
