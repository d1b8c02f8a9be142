package storage

import (
	"context"
	"errors"
	"time"

	"github.com/collegemedia/jobrunner/internal/core/job"
)

var (
	// ErrJobNotFound is returned when a job doesn't exist
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a status update is not
	// allowed from the job's current status
	ErrInvalidTransition = errors.New("invalid status transition")
)

// JobRepository handles job storage operations
type JobRepository interface {
	// Enqueue stores a new job in the queued state
	Enqueue(ctx context.Context, j *job.Job) error

	// Dequeue claims the oldest queued job on a queue and marks it
	// running. Returns nil when the queue is empty.
	Dequeue(ctx context.Context, queue string) (*job.Job, error)

	// Get retrieves a job by ID
	Get(ctx context.Context, id string) (*job.Job, error)

	// MarkSucceeded records a successful run
	MarkSucceeded(ctx context.Context, id string, attempts int) error

	// MarkFailed records a failed run; dead=true moves the job to the
	// dead status instead of failed
	MarkFailed(ctx context.Context, id string, attempts int, errMsg string, dead bool) error

	// Requeue returns a failed or dead job to the queued state
	Requeue(ctx context.Context, id string) error

	// ListByStatus retrieves jobs on a queue with the given status
	ListByStatus(ctx context.Context, queue string, status job.Status, limit int) ([]*job.Job, error)

	// CountByStatus returns per-status job counts for a queue
	CountByStatus(ctx context.Context, queue string) (map[job.Status]int, error)

	// DeleteFinishedBefore prunes terminal jobs finished before the cutoff
	DeleteFinishedBefore(ctx context.Context, queue string, cutoff time.Time) (int64, error)
}

// DeadLetterRepository handles the dead-letter queue
type DeadLetterRepository interface {
	// Add upserts a dead job. An existing entry for the same job keeps
	// its accumulated retry count and creation time so the redrive
	// budget survives repeated deaths
	Add(ctx context.Context, dj *job.DeadJob) error

	// GetNext retrieves the next dead job to redrive (lowest retry count)
	GetNext(ctx context.Context, queue string) (*job.DeadJob, error)

	// IncrementRetry increments retry count and updates last attempt
	IncrementRetry(ctx context.Context, queue, id string) error

	// MarkResolved removes a dead job (successfully redriven)
	MarkResolved(ctx context.Context, queue, id string) error

	// GetAll retrieves all dead jobs on a queue
	GetAll(ctx context.Context, queue string) ([]*job.DeadJob, error)

	// Count returns the count of dead jobs on a queue
	Count(ctx context.Context, queue string) (int, error)
}
