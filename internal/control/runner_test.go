package control

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/collegemedia/jobrunner/internal/core/config"
	"github.com/collegemedia/jobrunner/internal/core/job"
	"github.com/collegemedia/jobrunner/internal/runner"
)

func testConfig() Config {
	return Config{
		Port: 0, // ephemeral port, health server is not exercised here
		Queues: []config.QueueConfig{{
			Name:            "media",
			Workers:         1,
			MaxRetries:      1,
			Backoff:         time.Millisecond,
			Timeout:         100 * time.Millisecond,
			PollInterval:    5 * time.Millisecond,
			RedriveInterval: 5 * time.Millisecond,
			Breaker:         config.BreakerConfig{FailureThreshold: 5, Cooldown: time.Minute},
		}},
		RedriveEnabled: true,
	}
}

func waitForStatus(t *testing.T, r *Runner, id string, want job.Status) *job.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, err := r.Jobs().Get(context.Background(), id)
		if err == nil && j.Status == want {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	j, _ := r.Jobs().Get(context.Background(), id)
	t.Fatalf("job %s never reached %s (last: %+v)", id, want, j)
	return nil
}

func TestRunner_EndToEnd(t *testing.T) {
	registry := runner.NewRegistry()
	registry.Register("notify", func(ctx context.Context, p json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"sent"`), nil
	})
	registry.Register("broken", func(ctx context.Context, p json.RawMessage) (json.RawMessage, error) {
		return nil, errors.New("downstream unavailable")
	})

	r, err := NewRunner(testConfig(), registry)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Successful job
	r.Jobs().Enqueue(ctx, &job.Job{ID: "ok", Queue: "media", Name: "notify"})
	done := waitForStatus(t, r, "ok", job.StatusSucceeded)
	if done.Attempts != 1 {
		t.Errorf("attempts: got %d, want 1", done.Attempts)
	}

	// Exhausted job ends up dead-lettered
	r.Jobs().Enqueue(ctx, &job.Job{ID: "bad", Queue: "media", Name: "broken"})
	waitForStatus(t, r, "bad", job.StatusDead)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	if err := r.Stop(shutdownCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestNewRunner_RequiresQueues(t *testing.T) {
	if _, err := NewRunner(Config{}, runner.NewRegistry()); err == nil {
		t.Fatal("expected error for empty queue config")
	}
}
