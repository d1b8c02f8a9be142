package job

import (
	"encoding/json"
	"time"
)

// DeadJob represents a job whose retries were exhausted and which was
// handed off to the dead-letter queue.
type DeadJob struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Error       string          `json:"error_msg"`
	RetryCount  int             `json:"retry_count"`
	LastAttempt time.Time       `json:"last_attempt"`
	CreatedAt   time.Time       `json:"created_at"`
}
