package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/collegemedia/jobrunner/internal/core/job"
	"github.com/collegemedia/jobrunner/internal/infra/storage"
)

// MemoryStorage backs all in-memory repositories. Used when no database
// is configured and in tests.
type MemoryStorage struct {
	jobs map[string]*job.Job
	dead map[string][]*job.DeadJob // keyed by queue
	mu   sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		jobs: make(map[string]*job.Job),
		dead: make(map[string][]*job.DeadJob),
	}
}

// -----------------------------------------------------------------------------
// Job Repository
// -----------------------------------------------------------------------------

type JobRepo struct {
	store *MemoryStorage
}

func NewJobRepo(store *MemoryStorage) *JobRepo {
	return &JobRepo{store: store}
}

func (r *JobRepo) Enqueue(ctx context.Context, j *job.Job) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *j
	if cp.Status == "" {
		cp.Status = job.StatusQueued
	}
	if cp.EnqueuedAt.IsZero() {
		cp.EnqueuedAt = time.Now()
	}
	r.store.jobs[cp.ID] = &cp
	return nil
}

func (r *JobRepo) Dequeue(ctx context.Context, queue string) (*job.Job, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var oldest *job.Job
	for _, j := range r.store.jobs {
		if j.Queue != queue || j.Status != job.StatusQueued {
			continue
		}
		if oldest == nil || j.EnqueuedAt.Before(oldest.EnqueuedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}

	now := time.Now()
	oldest.Status = job.StatusRunning
	oldest.StartedAt = &now
	cp := *oldest
	return &cp, nil
}

func (r *JobRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	j, ok := r.store.jobs[id]
	if !ok {
		return nil, storage.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *JobRepo) MarkSucceeded(ctx context.Context, id string, attempts int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	j, ok := r.store.jobs[id]
	if !ok {
		return storage.ErrJobNotFound
	}
	if !job.ValidTransition(j.Status, job.StatusSucceeded) {
		return fmt.Errorf("%s -> %s: %w", j.Status, job.StatusSucceeded, storage.ErrInvalidTransition)
	}
	now := time.Now()
	j.Status = job.StatusSucceeded
	j.Attempts = attempts
	j.LastError = ""
	j.FinishedAt = &now
	return nil
}

func (r *JobRepo) MarkFailed(ctx context.Context, id string, attempts int, errMsg string, dead bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	j, ok := r.store.jobs[id]
	if !ok {
		return storage.ErrJobNotFound
	}
	to := job.StatusFailed
	if dead {
		to = job.StatusDead
	}
	if !job.ValidTransition(j.Status, to) {
		return fmt.Errorf("%s -> %s: %w", j.Status, to, storage.ErrInvalidTransition)
	}
	now := time.Now()
	j.Status = to
	j.Attempts = attempts
	j.LastError = errMsg
	j.FinishedAt = &now
	return nil
}

func (r *JobRepo) Requeue(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	j, ok := r.store.jobs[id]
	if !ok {
		return storage.ErrJobNotFound
	}
	if !job.ValidTransition(j.Status, job.StatusQueued) {
		return fmt.Errorf("%s -> %s: %w", j.Status, job.StatusQueued, storage.ErrInvalidTransition)
	}
	j.Status = job.StatusQueued
	j.StartedAt = nil
	j.FinishedAt = nil
	j.EnqueuedAt = time.Now()
	return nil
}

func (r *JobRepo) ListByStatus(ctx context.Context, queue string, status job.Status, limit int) ([]*job.Job, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*job.Job, 0)
	for _, j := range r.store.jobs {
		if j.Queue == queue && j.Status == status {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].EnqueuedAt.Before(out[k].EnqueuedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *JobRepo) CountByStatus(ctx context.Context, queue string) (map[job.Status]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	counts := make(map[job.Status]int)
	for _, j := range r.store.jobs {
		if j.Queue == queue {
			counts[j.Status]++
		}
	}
	return counts, nil
}

func (r *JobRepo) DeleteFinishedBefore(ctx context.Context, queue string, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var removed int64
	for id, j := range r.store.jobs {
		if j.Queue != queue || !j.Finished() || j.FinishedAt == nil {
			continue
		}
		if j.FinishedAt.Before(cutoff) {
			delete(r.store.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// -----------------------------------------------------------------------------
// Dead Letter Repository
// -----------------------------------------------------------------------------

type DeadLetterRepo struct {
	store *MemoryStorage
}

func NewDeadLetterRepo(store *MemoryStorage) *DeadLetterRepo {
	return &DeadLetterRepo{store: store}
}

func (r *DeadLetterRepo) Add(ctx context.Context, dj *job.DeadJob) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *dj
	for i, existing := range r.store.dead[dj.Queue] {
		if existing.ID == dj.ID {
			// Dying again after a redrive keeps the budget.
			cp.RetryCount = existing.RetryCount
			cp.CreatedAt = existing.CreatedAt
			r.store.dead[dj.Queue][i] = &cp
			return nil
		}
	}
	r.store.dead[dj.Queue] = append(r.store.dead[dj.Queue], &cp)
	return nil
}

func (r *DeadLetterRepo) GetNext(ctx context.Context, queue string) (*job.DeadJob, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var next *job.DeadJob
	for _, dj := range r.store.dead[queue] {
		if next == nil || dj.RetryCount < next.RetryCount {
			next = dj
		}
	}
	if next == nil {
		return nil, nil
	}
	cp := *next
	return &cp, nil
}

func (r *DeadLetterRepo) IncrementRetry(ctx context.Context, queue, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, dj := range r.store.dead[queue] {
		if dj.ID == id {
			dj.RetryCount++
			dj.LastAttempt = time.Now()
		}
	}
	return nil
}

func (r *DeadLetterRepo) MarkResolved(ctx context.Context, queue, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := make([]*job.DeadJob, 0, len(r.store.dead[queue]))
	for _, dj := range r.store.dead[queue] {
		if dj.ID != id {
			kept = append(kept, dj)
		}
	}
	r.store.dead[queue] = kept
	return nil
}

func (r *DeadLetterRepo) GetAll(ctx context.Context, queue string) ([]*job.DeadJob, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*job.DeadJob, 0, len(r.store.dead[queue]))
	for _, dj := range r.store.dead[queue] {
		cp := *dj
		out = append(out, &cp)
	}
	return out, nil
}

func (r *DeadLetterRepo) Count(ctx context.Context, queue string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.dead[queue]), nil
}
