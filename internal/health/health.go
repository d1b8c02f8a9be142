// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// QueueHealth contains health metrics for a specific job queue.
type QueueHealth struct {
	Queue           string       `json:"queue"`
	Status          SystemStatus `json:"status"`
	Queued          int          `json:"queued"`
	Running         int          `json:"running"`
	Dead            int          `json:"dead"`
	DeadLetterDepth int          `json:"dead_letter_depth"`
	Issues          []string     `json:"issues,omitempty"`
}
