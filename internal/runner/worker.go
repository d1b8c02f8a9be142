package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/collegemedia/jobrunner/internal/breaker"
	"github.com/collegemedia/jobrunner/internal/core/config"
	"github.com/collegemedia/jobrunner/internal/core/job"
	"github.com/collegemedia/jobrunner/internal/executor"
	"github.com/collegemedia/jobrunner/internal/infra/storage"
	"github.com/collegemedia/jobrunner/internal/metrics"
)

// Worker polls one queue, runs claimed jobs through the executor and
// persists the outcome. Retries happen inside the executor, so a job
// leaving it with an error has exhausted its attempts and goes to the
// dead-letter queue.
type Worker struct {
	cfg      config.QueueConfig
	jobs     storage.JobRepository
	dead     storage.DeadLetterRepository
	registry *Registry
	brk      *breaker.Breaker
	log      *slog.Logger
}

// NewWorker creates a worker for one queue.
func NewWorker(
	cfg config.QueueConfig,
	jobs storage.JobRepository,
	dead storage.DeadLetterRepository,
	registry *Registry,
	brk *breaker.Breaker,
) *Worker {
	return &Worker{
		cfg:      cfg,
		jobs:     jobs,
		dead:     dead,
		registry: registry,
		brk:      brk,
		log:      slog.Default().With("queue", cfg.Name),
	}
}

// Start runs the worker pool for this queue and blocks until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain processes queued jobs until the queue is empty, the breaker
// rejects, or ctx is done.
func (w *Worker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := w.brk.Allow(); err != nil {
			// Breaker open: leave the queue alone until the next poll.
			w.log.Debug("breaker open, pausing queue")
			return
		}
		j, err := w.jobs.Dequeue(ctx, w.cfg.Name)
		if err != nil {
			w.log.Error("dequeue failed", "error", err)
			return
		}
		if j == nil {
			return
		}
		w.process(ctx, j)
	}
}

func (w *Worker) process(ctx context.Context, j *job.Job) {
	log := w.log.With("job_id", j.ID, "job", j.Name)

	op, ok := w.registry.Get(j.Name)
	if !ok {
		// No handler is not a transient condition; dead-letter directly.
		err := fmt.Errorf("no handler registered for job %q", j.Name)
		log.Error("job rejected", "error", err)
		w.deadLetter(ctx, j, err)
		w.finalize(ctx, j.ID, 0, err.Error(), true)
		return
	}

	maxRetries := w.cfg.MaxRetries
	if j.MaxAttempts > 0 {
		maxRetries = j.MaxAttempts - 1
		if maxRetries == 0 {
			maxRetries = executor.NoRetries
		}
	}

	var attempts int
	counted := func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		attempts++
		metrics.JobAttempts.WithLabelValues(w.cfg.Name).Inc()
		return op(ctx, payload)
	}

	exec := executor.New(executor.Config{
		Name:       j.Name,
		MaxRetries: maxRetries,
		Backoff:    w.cfg.Backoff,
		Timeout:    w.cfg.Timeout,
		OnDeadLetter: func(ctx context.Context, payload json.RawMessage, err error) {
			w.deadLetter(ctx, j, err)
		},
	}, counted)

	start := time.Now()
	_, err := exec.Execute(ctx, j.Payload)
	metrics.JobDuration.WithLabelValues(w.cfg.Name).Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		// Shutdown mid-run: release the claim so the job is not lost.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.jobs.Requeue(releaseCtx, j.ID); err != nil {
			log.Error("failed to release job on shutdown", "error", err)
		}
		return
	}

	if err != nil {
		w.brk.RecordFailure()
		w.finalize(ctx, j.ID, attempts, err.Error(), true)
		metrics.JobsProcessed.WithLabelValues(w.cfg.Name, string(job.StatusDead)).Inc()
	} else {
		w.brk.RecordSuccess()
		w.finalize(ctx, j.ID, attempts, "", false)
		// A redriven job that finally succeeds still has a dead-letter
		// entry carrying its redrive budget; clear it.
		if err := w.dead.MarkResolved(ctx, w.cfg.Name, j.ID); err != nil {
			log.Warn("failed to clear dead-letter entry", "error", err)
		}
		metrics.JobsProcessed.WithLabelValues(w.cfg.Name, string(job.StatusSucceeded)).Inc()
	}
	metrics.BreakerState.WithLabelValues(w.cfg.Name).Set(float64(w.brk.State()))
}

func (w *Worker) finalize(ctx context.Context, id string, attempts int, errMsg string, dead bool) {
	var err error
	if dead {
		err = w.jobs.MarkFailed(ctx, id, attempts, errMsg, true)
	} else {
		err = w.jobs.MarkSucceeded(ctx, id, attempts)
	}
	if err != nil {
		w.log.Error("failed to record job outcome", "job_id", id, "error", err)
	}
}

// deadLetter hands an exhausted job to the dead-letter queue. Add is an
// upsert: a job dying again after a redrive keeps its accumulated
// redrive count.
func (w *Worker) deadLetter(ctx context.Context, j *job.Job, cause error) {
	now := time.Now()
	dj := &job.DeadJob{
		ID:          j.ID,
		Queue:       j.Queue,
		Name:        j.Name,
		Payload:     j.Payload,
		Error:       cause.Error(),
		LastAttempt: now,
		CreatedAt:   now,
	}
	if err := w.dead.Add(ctx, dj); err != nil {
		w.log.Error("failed to dead-letter job", "job_id", j.ID, "error", err)
		return
	}
	metrics.DeadLetters.WithLabelValues(w.cfg.Name).Inc()
	if count, err := w.dead.Count(ctx, w.cfg.Name); err == nil {
		metrics.DeadLetterQueueSize.WithLabelValues(w.cfg.Name).Set(float64(count))
	}
}
