package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/collegemedia/jobrunner/internal/core/job"
	"github.com/collegemedia/jobrunner/internal/infra/storage/memory"
)

type failingPinger struct{}

func (failingPinger) Health(ctx context.Context) error {
	return errors.New("connection refused")
}

func newTestMonitor() (*Monitor, *memory.JobRepo, *memory.DeadLetterRepo) {
	store := memory.NewMemoryStorage()
	jobs := memory.NewJobRepo(store)
	dead := memory.NewDeadLetterRepo(store)
	return NewMonitor([]string{"media"}, jobs, dead, nil, nil), jobs, dead
}

func TestMonitor_HealthyQueue(t *testing.T) {
	m, jobs, _ := newTestMonitor()
	ctx := context.Background()

	jobs.Enqueue(ctx, &job.Job{ID: "j1", Queue: "media", Name: "n"})

	report := m.CheckHealth(ctx)
	h, ok := report["media"]
	if !ok {
		t.Fatal("queue missing from report")
	}
	if h.Status != StatusHealthy {
		t.Errorf("status: got %s, want healthy", h.Status)
	}
	if h.Queued != 1 {
		t.Errorf("queued: got %d, want 1", h.Queued)
	}
}

func TestMonitor_DeadLetterBacklogDegrades(t *testing.T) {
	m, _, dead := newTestMonitor()
	ctx := context.Background()

	for i := 0; i < deadLetterDegradedThreshold; i++ {
		dead.Add(ctx, &job.DeadJob{
			ID:          string(rune('a' + i)),
			Queue:       "media",
			Name:        "n",
			LastAttempt: time.Now(),
			CreatedAt:   time.Now(),
		})
	}

	report := m.CheckHealth(ctx)
	h := report["media"]
	if h.Status != StatusDegraded {
		t.Errorf("status: got %s, want degraded", h.Status)
	}
	if h.DeadLetterDepth != deadLetterDegradedThreshold {
		t.Errorf("depth: got %d, want %d", h.DeadLetterDepth, deadLetterDegradedThreshold)
	}
}

func TestMonitor_UnreachableInfraIsCritical(t *testing.T) {
	store := memory.NewMemoryStorage()
	m := NewMonitor([]string{"media"},
		memory.NewJobRepo(store), memory.NewDeadLetterRepo(store),
		failingPinger{}, nil)

	report := m.CheckHealth(context.Background())
	h := report["media"]
	if h.Status != StatusCritical {
		t.Errorf("status: got %s, want critical", h.Status)
	}
	if len(h.Issues) == 0 {
		t.Error("expected issues to be reported")
	}
}

func TestMonitor_CachesReports(t *testing.T) {
	m, jobs, _ := newTestMonitor()
	ctx := context.Background()

	first := m.CheckHealth(ctx)
	if first["media"].Queued != 0 {
		t.Fatalf("queued: got %d, want 0", first["media"].Queued)
	}

	// Within the cache window the stale report is returned.
	jobs.Enqueue(ctx, &job.Job{ID: "j1", Queue: "media", Name: "n"})
	second := m.CheckHealth(ctx)
	if second["media"].Queued != 0 {
		t.Errorf("cache bypassed: queued = %d", second["media"].Queued)
	}
}
