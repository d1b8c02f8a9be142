package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/collegemedia/jobrunner/internal/core/config"
	"github.com/collegemedia/jobrunner/internal/core/job"
	"github.com/collegemedia/jobrunner/internal/infra/storage"
	"github.com/collegemedia/jobrunner/internal/metrics"
)

// RedriveLocker serializes redrive passes across runner instances. The
// holder refreshes the lock every tick; the TTL outlives one interval so
// the lock expires on its own if the holder dies.
type RedriveLocker interface {
	AcquireRedriveLock(ctx context.Context, queue string, ttl time.Duration) (bool, error)
	RefreshRedriveLock(ctx context.Context, queue string, ttl time.Duration) error
	ReleaseRedriveLock(ctx context.Context, queue string) error
}

// Redriver drains the dead-letter queue, returning dead jobs to their
// queue once the backoff window for their retry count has elapsed.
type Redriver struct {
	cfg      config.QueueConfig
	jobs     storage.JobRepository
	dead     storage.DeadLetterRepository
	strategy RedriveStrategy
	locker   RedriveLocker // nil when running single-instance without Redis
	log      *slog.Logger
}

// NewRedriver creates a redriver for one queue.
func NewRedriver(
	cfg config.QueueConfig,
	jobs storage.JobRepository,
	dead storage.DeadLetterRepository,
	strategy RedriveStrategy,
	locker RedriveLocker,
) *Redriver {
	if strategy == nil {
		strategy = DefaultRedriveBackoff()
	}
	return &Redriver{
		cfg:      cfg,
		jobs:     jobs,
		dead:     dead,
		strategy: strategy,
		locker:   locker,
		log:      slog.Default().With("queue", cfg.Name),
	}
}

// Start runs the redrive loop until ctx is done. With a locker, only
// the instance holding the queue's lock redrives; the holder refreshes
// the lock every tick.
func (r *Redriver) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RedriveInterval)
	defer ticker.Stop()

	held := false
	defer func() {
		if held && r.locker != nil {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = r.locker.ReleaseRedriveLock(releaseCtx, r.cfg.Name)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := r.holdLock(ctx, held)
			if err != nil {
				r.log.Warn("redrive lock failed", "error", err)
				held = false
				continue
			}
			held = ok
			if !ok {
				continue // Another instance is redriving this queue
			}
			if err := r.ProcessNext(ctx); err != nil {
				r.log.Error("redrive pass failed", "error", err)
			}
		}
	}
}

// holdLock acquires the queue's redrive lock, or refreshes it when
// already held. Without a locker every instance proceeds.
func (r *Redriver) holdLock(ctx context.Context, held bool) (bool, error) {
	if r.locker == nil {
		return true, nil
	}
	ttl := 2 * r.cfg.RedriveInterval
	if held {
		if err := r.locker.RefreshRedriveLock(ctx, r.cfg.Name, ttl); err != nil {
			return false, fmt.Errorf("failed to refresh redrive lock: %w", err)
		}
		return true, nil
	}
	return r.locker.AcquireRedriveLock(ctx, r.cfg.Name, ttl)
}

// ProcessNext picks the next dead job and redrives it if backoff allows.
// Entries stay in the dead-letter queue across redrives so the budget
// accumulates; they are removed when the job finally succeeds, when the
// budget is exhausted, or when the jobs-table row disappears.
func (r *Redriver) ProcessNext(ctx context.Context) error {
	dj, err := r.dead.GetNext(ctx, r.cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to get next dead job: %w", err)
	}
	if dj == nil {
		metrics.DeadLetterQueueSize.WithLabelValues(r.cfg.Name).Set(0)
		return nil
	}

	if !r.strategy.ShouldRedrive(dj.RetryCount) {
		// Out of redrive budget; drop from the queue, the jobs table
		// keeps the terminal record.
		r.log.Warn("abandoning dead job",
			"job_id", dj.ID, "job", dj.Name, "redrives", dj.RetryCount)
		return r.dead.MarkResolved(ctx, r.cfg.Name, dj.ID)
	}

	delay := r.strategy.GetDelay(dj.RetryCount)
	if time.Now().Before(dj.LastAttempt.Add(delay)) {
		return nil
	}

	j, err := r.jobs.Get(ctx, dj.ID)
	if errors.Is(err, storage.ErrJobNotFound) {
		// Pruned from the jobs table; nothing left to redrive.
		return r.dead.MarkResolved(ctx, r.cfg.Name, dj.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to get job %s: %w", dj.ID, err)
	}
	switch j.Status {
	case job.StatusQueued, job.StatusRunning:
		return nil // Previous redrive still in flight
	case job.StatusSucceeded:
		return r.dead.MarkResolved(ctx, r.cfg.Name, dj.ID)
	}

	if err := r.jobs.Requeue(ctx, dj.ID); err != nil {
		r.log.Warn("redrive failed", "job_id", dj.ID, "error", err)
		if err := r.dead.IncrementRetry(ctx, r.cfg.Name, dj.ID); err != nil {
			return fmt.Errorf("failed to increment retry: %w", err)
		}
		return nil
	}

	if err := r.dead.IncrementRetry(ctx, r.cfg.Name, dj.ID); err != nil {
		return fmt.Errorf("failed to increment retry: %w", err)
	}
	metrics.RedrivenJobs.WithLabelValues(r.cfg.Name).Inc()
	r.log.Info("dead job redriven",
		"job_id", dj.ID, "job", dj.Name, "redrives", dj.RetryCount+1)

	if count, err := r.dead.Count(ctx, r.cfg.Name); err == nil {
		metrics.DeadLetterQueueSize.WithLabelValues(r.cfg.Name).Set(float64(count))
	}
	return nil
}
