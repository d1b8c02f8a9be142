package runner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/collegemedia/jobrunner/internal/core/job"
	"github.com/collegemedia/jobrunner/internal/infra/storage/memory"
)

// =============================================================================
// Mock locker
// =============================================================================

type mockLocker struct {
	mu        sync.Mutex
	held      bool
	acquires  int
	refreshes int
}

func (l *mockLocker) AcquireRedriveLock(ctx context.Context, queue string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *mockLocker) RefreshRedriveLock(ctx context.Context, queue string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshes++
	return nil
}

func (l *mockLocker) ReleaseRedriveLock(ctx context.Context, queue string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	return nil
}

// =============================================================================
// Fixtures
// =============================================================================

func deadTestJob(id string, retries int, lastAttempt time.Time) *job.DeadJob {
	return &job.DeadJob{
		ID:          id,
		Queue:       "media",
		Name:        "transcode",
		Payload:     json.RawMessage(`{}`),
		Error:       "exhausted",
		RetryCount:  retries,
		LastAttempt: lastAttempt,
		CreatedAt:   lastAttempt,
	}
}

func newTestRedriver(strategy RedriveStrategy, locker RedriveLocker) (*Redriver, *memory.JobRepo, *memory.DeadLetterRepo) {
	store := memory.NewMemoryStorage()
	jobs := memory.NewJobRepo(store)
	dead := memory.NewDeadLetterRepo(store)
	r := NewRedriver(testQueueConfig(), jobs, dead, strategy, locker)
	return r, jobs, dead
}

// deadJobRow walks a job through the claim-and-exhaust lifecycle so its
// row carries the dead status.
func deadJobRow(t *testing.T, jobs *memory.JobRepo, id string) {
	t.Helper()
	ctx := context.Background()
	if err := jobs.Enqueue(ctx, &job.Job{ID: id, Queue: "media", Name: "transcode"}); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := jobs.Dequeue(ctx, "media"); err != nil {
		t.Fatalf("dequeue failed: %v", err)
	}
	if err := jobs.MarkFailed(ctx, id, 4, "exhausted", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
}

// =============================================================================
// Redriver
// =============================================================================

func TestRedriver_RedrivesAfterBackoff(t *testing.T) {
	r, jobs, dead := newTestRedriver(&ExponentialBackoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Second,
		MaxAttempts:  5,
	}, nil)

	ctx := context.Background()

	// The dead job's row is still in the jobs table with dead status.
	deadJobRow(t, jobs, "j1")
	dead.Add(ctx, deadTestJob("j1", 0, time.Now().Add(-time.Minute)))

	if err := r.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext failed: %v", err)
	}

	got, _ := jobs.Get(ctx, "j1")
	if got.Status != job.StatusQueued {
		t.Errorf("status: got %s, want queued", got.Status)
	}

	// The entry stays behind with its budget advanced; it is cleared
	// when the job succeeds or the budget runs out.
	djs, _ := dead.GetAll(ctx, "media")
	if len(djs) != 1 {
		t.Fatalf("dead-letter count: got %d, want 1", len(djs))
	}
	if djs[0].RetryCount != 1 {
		t.Errorf("retry count: got %d, want 1", djs[0].RetryCount)
	}
}

func TestRedriver_WaitsForBackoffWindow(t *testing.T) {
	r, jobs, dead := newTestRedriver(&ExponentialBackoff{
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		MaxAttempts:  5,
	}, nil)

	ctx := context.Background()
	deadJobRow(t, jobs, "j1")
	dead.Add(ctx, deadTestJob("j1", 0, time.Now()))

	if err := r.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext failed: %v", err)
	}

	got, _ := jobs.Get(ctx, "j1")
	if got.Status != job.StatusDead {
		t.Errorf("status: got %s, want dead (backoff not elapsed)", got.Status)
	}
	if n, _ := dead.Count(ctx, "media"); n != 1 {
		t.Errorf("dead-letter count: got %d, want 1", n)
	}
}

func TestRedriver_AbandonsOutOfBudgetJobs(t *testing.T) {
	r, jobs, dead := newTestRedriver(&ExponentialBackoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Second,
		MaxAttempts:  2,
	}, nil)

	ctx := context.Background()
	deadJobRow(t, jobs, "j1")
	dead.Add(ctx, deadTestJob("j1", 2, time.Now().Add(-time.Hour)))

	if err := r.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext failed: %v", err)
	}

	// Removed from the dead-letter queue without requeueing.
	if n, _ := dead.Count(ctx, "media"); n != 0 {
		t.Errorf("dead-letter count: got %d, want 0", n)
	}
	got, _ := jobs.Get(ctx, "j1")
	if got.Status != job.StatusDead {
		t.Errorf("status: got %s, want dead (abandoned)", got.Status)
	}
}

func TestRedriver_EmptyQueueIsNoop(t *testing.T) {
	r, _, _ := newTestRedriver(nil, nil)
	if err := r.ProcessNext(context.Background()); err != nil {
		t.Fatalf("ProcessNext on empty queue: %v", err)
	}
}

func TestRedriver_SkipsInFlightJobs(t *testing.T) {
	r, jobs, dead := newTestRedriver(&ExponentialBackoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Second,
		MaxAttempts:  5,
	}, nil)

	ctx := context.Background()
	// The job's previous redrive already put it back in the queue.
	jobs.Enqueue(ctx, &job.Job{ID: "j1", Queue: "media", Name: "transcode"})
	dead.Add(ctx, deadTestJob("j1", 1, time.Now().Add(-time.Minute)))

	if err := r.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext failed: %v", err)
	}

	// Entry untouched, budget not spent on a job already in flight.
	djs, _ := dead.GetAll(ctx, "media")
	if len(djs) != 1 || djs[0].RetryCount != 1 {
		t.Errorf("dead-letter entries: got %+v, want one with retry count 1", djs)
	}
}

func TestRedriver_PermanentlyFailingJobIsAbandoned(t *testing.T) {
	cfg := testQueueConfig()
	w, jobs, dead, registry, _ := newTestWorker(cfg)
	r := NewRedriver(cfg, jobs, dead, &ExponentialBackoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		MaxAttempts:  2,
	}, nil)

	calls := 0
	registry.Register("transcode", func(ctx context.Context, p json.RawMessage) (json.RawMessage, error) {
		calls++
		return nil, errors.New("codec rejects input")
	})

	ctx := context.Background()
	jobs.Enqueue(ctx, &job.Job{ID: "j1", Queue: "media", Name: "transcode"})

	// Alternate worker and redriver passes the way the runner does.
	// The redrive budget must accumulate across deaths, not reset.
	for i := 0; i < 5; i++ {
		w.drain(ctx)
		time.Sleep(5 * time.Millisecond) // let the redrive backoff window pass
		if err := r.ProcessNext(ctx); err != nil {
			t.Fatalf("ProcessNext failed: %v", err)
		}
	}

	if n, _ := dead.Count(ctx, "media"); n != 0 {
		t.Errorf("dead-letter count: got %d, want 0 (abandoned)", n)
	}
	got, _ := jobs.Get(ctx, "j1")
	if got.Status != job.StatusDead {
		t.Errorf("status: got %s, want dead", got.Status)
	}
	// 2 redrives on top of the first run, 2 attempts each.
	if calls != 6 {
		t.Errorf("handler calls: got %d, want 6", calls)
	}
}

func TestRedriver_LockContention(t *testing.T) {
	locker := &mockLocker{held: true} // someone else holds the lock
	r, _, _ := newTestRedriver(nil, locker)

	ok, err := r.holdLock(context.Background(), false)
	if err != nil {
		t.Fatalf("holdLock failed: %v", err)
	}
	if ok {
		t.Error("acquired a lock held by another instance")
	}
	if locker.acquires != 1 {
		t.Errorf("lock acquires: got %d, want 1", locker.acquires)
	}
}

func TestRedriver_LockRefreshWhileHeld(t *testing.T) {
	locker := &mockLocker{}
	r, _, _ := newTestRedriver(nil, locker)

	ok, err := r.holdLock(context.Background(), false)
	if err != nil || !ok {
		t.Fatalf("initial acquire: ok=%v err=%v", ok, err)
	}
	ok, err = r.holdLock(context.Background(), true)
	if err != nil || !ok {
		t.Fatalf("refresh: ok=%v err=%v", ok, err)
	}
	if locker.refreshes != 1 {
		t.Errorf("lock refreshes: got %d, want 1", locker.refreshes)
	}
	if locker.acquires != 1 {
		t.Errorf("lock acquires: got %d, want 1", locker.acquires)
	}
}

// =============================================================================
// Strategy
// =============================================================================

func TestRedriveBackoff_Delay(t *testing.T) {
	strategy := DefaultRedriveBackoff()
	strategy.InitialDelay = 1 * time.Second
	strategy.MaxDelay = 10 * time.Second

	// Attempt 0: 1*2^0 = 1s
	if d := strategy.GetDelay(0); d != 1*time.Second {
		t.Errorf("expected 1s, got %v", d)
	}

	// Attempt 1: 1*2^1 = 2s
	if d := strategy.GetDelay(1); d != 2*time.Second {
		t.Errorf("expected 2s, got %v", d)
	}

	// Attempt 2: 1*2^2 = 4s
	if d := strategy.GetDelay(2); d != 4*time.Second {
		t.Errorf("expected 4s, got %v", d)
	}

	// Attempt 10: Cap at MaxDelay (10s)
	if d := strategy.GetDelay(10); d != 10*time.Second {
		t.Errorf("expected 10s, got %v", d)
	}
}

func TestRedriveBackoff_Budget(t *testing.T) {
	strategy := &ExponentialBackoff{MaxAttempts: 3}
	if !strategy.ShouldRedrive(2) {
		t.Error("attempt 2 should be within budget")
	}
	if strategy.ShouldRedrive(3) {
		t.Error("attempt 3 should be out of budget")
	}
}
