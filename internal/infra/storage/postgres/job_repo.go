package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/collegemedia/jobrunner/internal/core/job"
	"github.com/collegemedia/jobrunner/internal/infra/storage"
)

// JobRepo implements storage.JobRepository using PostgreSQL.
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a new PostgreSQL job repository.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

const jobColumns = `id, queue, name, payload, status, attempts, max_attempts, last_error,
	enqueued_at, started_at, finished_at`

// Enqueue inserts a new job in the queued state.
func (r *JobRepo) Enqueue(ctx context.Context, j *job.Job) error {
	if j.Status == "" {
		j.Status = job.StatusQueued
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO jobs (id, queue, name, payload, status, attempts, max_attempts, last_error, enqueued_at)
		VALUES (:id, :queue, :name, :payload, :status, :attempts, :max_attempts, :last_error, :enqueued_at)`, j)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue claims the oldest queued job on a queue. SKIP LOCKED keeps
// concurrent workers from claiming the same row.
func (r *JobRepo) Dequeue(ctx context.Context, queue string) (*job.Job, error) {
	var j job.Job
	err := r.db.GetContext(ctx, &j, `
		UPDATE jobs
		SET status = $1, started_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue = $2 AND status = $3
			ORDER BY enqueued_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		job.StatusRunning, queue, job.StatusQueued)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Queue empty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	return &j, nil
}

// Get retrieves a job by ID.
func (r *JobRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	var j job.Job
	err := r.db.GetContext(ctx, &j, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &j, nil
}

// MarkSucceeded records a successful run.
func (r *JobRepo) MarkSucceeded(ctx context.Context, id string, attempts int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, attempts = $2, last_error = '', finished_at = NOW()
		WHERE id = $3`,
		job.StatusSucceeded, attempts, id)
	if err != nil {
		return fmt.Errorf("failed to mark job succeeded: %w", err)
	}
	return checkUpdated(res)
}

// MarkFailed records a failed run; dead moves the job to the dead status.
func (r *JobRepo) MarkFailed(ctx context.Context, id string, attempts int, errMsg string, dead bool) error {
	status := job.StatusFailed
	if dead {
		status = job.StatusDead
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, attempts = $2, last_error = $3, finished_at = NOW()
		WHERE id = $4`,
		status, attempts, errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return checkUpdated(res)
}

// Requeue returns a job to the queued state. Used both to release a
// claimed job the worker could not run and to redrive failed/dead jobs.
func (r *JobRepo) Requeue(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $1, started_at = NULL, finished_at = NULL, enqueued_at = NOW()
		WHERE id = $2`,
		job.StatusQueued, id)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	return checkUpdated(res)
}

// ListByStatus retrieves jobs on a queue with the given status.
func (r *JobRepo) ListByStatus(
	ctx context.Context,
	queue string,
	status job.Status,
	limit int,
) ([]*job.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	jobs := make([]*job.Job, 0)
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT `+jobColumns+` FROM jobs
		WHERE queue = $1 AND status = $2
		ORDER BY enqueued_at
		LIMIT $3`,
		queue, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// CountByStatus returns per-status job counts for a queue.
func (r *JobRepo) CountByStatus(ctx context.Context, queue string) (map[job.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM jobs WHERE queue = $1 GROUP BY status`, queue)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[job.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[job.Status(status)] = count
	}
	return counts, rows.Err()
}

// DeleteFinishedBefore prunes terminal jobs finished before the cutoff.
func (r *JobRepo) DeleteFinishedBefore(
	ctx context.Context,
	queue string,
	cutoff time.Time,
) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE queue = $1
		  AND status IN ($2, $3, $4)
		  AND finished_at IS NOT NULL
		  AND finished_at < $5`,
		queue, job.StatusSucceeded, job.StatusFailed, job.StatusDead, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func checkUpdated(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrJobNotFound
	}
	return nil
}
