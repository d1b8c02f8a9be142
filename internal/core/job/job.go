package job

import (
	"encoding/json"
	"time"
)

// Job represents one unit of background work flowing through the runner.
type Job struct {
	ID          string          `json:"id" db:"id"`
	Queue       string          `json:"queue" db:"queue"`
	Name        string          `json:"name" db:"name"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	Status      Status          `json:"status" db:"status"`
	Attempts    int             `json:"attempts" db:"attempts"`
	MaxAttempts int             `json:"max_attempts" db:"max_attempts"`
	LastError   string          `json:"last_error" db:"last_error"`
	EnqueuedAt  time.Time       `json:"enqueued_at" db:"enqueued_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty" db:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
}

// Finished reports whether the job reached a terminal status.
func (j *Job) Finished() bool {
	switch j.Status {
	case StatusSucceeded, StatusFailed, StatusDead:
		return true
	}
	return false
}
