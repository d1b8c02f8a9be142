package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collegemedia/jobrunner/internal/core/job"
)

// deadJobTTL bounds how long a dead job's payload is retained.
const deadJobTTL = 24 * time.Hour

// DeadLetterRepo implements DeadLetterRepository using Redis.
type DeadLetterRepo struct {
	rdb *redis.Client
}

// NewDeadLetterRepo creates a new Redis-backed dead-letter repository.
func NewDeadLetterRepo(client *Client) *DeadLetterRepo {
	return &DeadLetterRepo{rdb: client.rdb}
}

// Key helpers
func queueKey(queue string) string {
	return fmt.Sprintf("dead_jobs:%s", queue)
}

func jobKey(queue, id string) string {
	return fmt.Sprintf("dead_job:%s:%s", queue, id)
}

// Add upserts a dead job. A job dying again after a redrive keeps the
// retry count and creation time of its existing entry, so the redrive
// budget accumulates across cycles.
func (r *DeadLetterRepo) Add(ctx context.Context, dj *job.DeadJob) error {
	entry := *dj
	prev, err := r.rdb.Get(ctx, jobKey(dj.Queue, dj.ID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to get dead job: %w", err)
	}
	if err == nil {
		var existing job.DeadJob
		if err := json.Unmarshal(prev, &existing); err == nil {
			entry.RetryCount = existing.RetryCount
			entry.CreatedAt = existing.CreatedAt
		}
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	if err := r.rdb.Set(ctx, jobKey(entry.Queue, entry.ID), data, deadJobTTL).Err(); err != nil {
		return fmt.Errorf("failed to set dead job: %w", err)
	}

	// Sorted set scored by retry count, lower = redrive first
	if err := r.rdb.ZAdd(ctx, queueKey(entry.Queue), redis.Z{
		Score:  float64(entry.RetryCount),
		Member: entry.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}

	return nil
}

// GetNext retrieves the next dead job to redrive.
func (r *DeadLetterRepo) GetNext(ctx context.Context, queue string) (*job.DeadJob, error) {
	results, err := r.rdb.ZRange(ctx, queueKey(queue), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	if len(results) == 0 {
		return nil, nil
	}

	id := results[0]

	data, err := r.rdb.Get(ctx, jobKey(queue, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Payload expired but ID still in queue, remove it
		r.rdb.ZRem(ctx, queueKey(queue), id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead job: %w", err)
	}

	var dj job.DeadJob
	if err := json.Unmarshal(data, &dj); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dead job: %w", err)
	}

	return &dj, nil
}

// IncrementRetry increments retry count and updates last attempt.
func (r *DeadLetterRepo) IncrementRetry(ctx context.Context, queue, id string) error {
	data, err := r.rdb.Get(ctx, jobKey(queue, id)).Bytes()
	if err != nil {
		return fmt.Errorf("failed to get dead job: %w", err)
	}

	var dj job.DeadJob
	if err := json.Unmarshal(data, &dj); err != nil {
		return fmt.Errorf("failed to unmarshal dead job: %w", err)
	}

	dj.RetryCount++
	dj.LastAttempt = time.Now()

	newData, err := json.Marshal(&dj)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	if err := r.rdb.Set(ctx, jobKey(queue, id), newData, deadJobTTL).Err(); err != nil {
		return fmt.Errorf("failed to set dead job: %w", err)
	}

	// Push to the back of the redrive order
	if err := r.rdb.ZAdd(ctx, queueKey(queue), redis.Z{
		Score:  float64(dj.RetryCount),
		Member: id,
	}).Err(); err != nil {
		return fmt.Errorf("failed to update queue: %w", err)
	}

	return nil
}

// MarkResolved removes a dead job (successfully redriven).
func (r *DeadLetterRepo) MarkResolved(ctx context.Context, queue, id string) error {
	if err := r.rdb.ZRem(ctx, queueKey(queue), id).Err(); err != nil {
		return fmt.Errorf("failed to remove from queue: %w", err)
	}

	if err := r.rdb.Del(ctx, jobKey(queue, id)).Err(); err != nil {
		return fmt.Errorf("failed to delete dead job: %w", err)
	}

	return nil
}

// GetAll retrieves all dead jobs on a queue.
func (r *DeadLetterRepo) GetAll(ctx context.Context, queue string) ([]*job.DeadJob, error) {
	ids, err := r.rdb.ZRange(ctx, queueKey(queue), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	jobs := make([]*job.DeadJob, 0, len(ids))
	for _, id := range ids {
		data, err := r.rdb.Get(ctx, jobKey(queue, id)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get dead job: %w", err)
		}

		var dj job.DeadJob
		if err := json.Unmarshal(data, &dj); err != nil {
			continue
		}
		jobs = append(jobs, &dj)
	}

	return jobs, nil
}

// Count returns the count of dead jobs on a queue.
func (r *DeadLetterRepo) Count(ctx context.Context, queue string) (int, error) {
	count, err := r.rdb.ZCard(ctx, queueKey(queue)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}
