package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/collegemedia/jobrunner/internal/core/job"
	"github.com/collegemedia/jobrunner/internal/infra/storage"
)

// deadLetterDegradedThreshold is the dead-letter depth at which a queue
// is reported degraded.
const deadLetterDegradedThreshold = 10

// Pinger reports infrastructure reachability.
type Pinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from storage and the dead-letter queue.
type Monitor struct {
	queues     []string
	jobs       storage.JobRepository
	dead       storage.DeadLetterRepository
	db         Pinger // nil when running on memory storage
	redis      Pinger // nil when Redis is not configured
	lastCheck  time.Time
	lastReport map[string]QueueHealth
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(
	queues []string,
	jobs storage.JobRepository,
	dead storage.DeadLetterRepository,
	db Pinger,
	redis Pinger,
) *Monitor {
	return &Monitor{
		queues:     queues,
		jobs:       jobs,
		dead:       dead,
		db:         db,
		redis:      redis,
		lastReport: make(map[string]QueueHealth),
	}
}

// CheckHealth performs a health check for all queues.
func (m *Monitor) CheckHealth(ctx context.Context) map[string]QueueHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (max once per 10s) to avoid hammering storage
	if time.Since(m.lastCheck) < 10*time.Second && len(m.lastReport) > 0 {
		return m.lastReport
	}

	var infraIssues []string
	if m.db != nil {
		if err := m.db.Health(ctx); err != nil {
			infraIssues = append(infraIssues, fmt.Sprintf("database unreachable: %v", err))
		}
	}
	if m.redis != nil {
		if err := m.redis.Health(ctx); err != nil {
			infraIssues = append(infraIssues, fmt.Sprintf("redis unreachable: %v", err))
		}
	}

	report := make(map[string]QueueHealth, len(m.queues))
	for _, q := range m.queues {
		report[q] = m.checkQueue(ctx, q, infraIssues)
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) checkQueue(ctx context.Context, queue string, infraIssues []string) QueueHealth {
	h := QueueHealth{
		Queue:  queue,
		Status: StatusHealthy,
		Issues: append([]string(nil), infraIssues...),
	}
	if len(infraIssues) > 0 {
		h.Status = StatusCritical
	}

	counts, err := m.jobs.CountByStatus(ctx, queue)
	if err != nil {
		h.Status = StatusCritical
		h.Issues = append(h.Issues, fmt.Sprintf("count query failed: %v", err))
	} else {
		h.Queued = counts[job.StatusQueued]
		h.Running = counts[job.StatusRunning]
		h.Dead = counts[job.StatusDead]
	}

	depth, err := m.dead.Count(ctx, queue)
	if err != nil {
		if h.Status == StatusHealthy {
			h.Status = StatusDegraded
		}
		h.Issues = append(h.Issues, fmt.Sprintf("dead-letter count failed: %v", err))
	} else {
		h.DeadLetterDepth = depth
		if depth >= deadLetterDegradedThreshold && h.Status == StatusHealthy {
			h.Status = StatusDegraded
			h.Issues = append(h.Issues, fmt.Sprintf("dead-letter backlog: %d", depth))
		}
	}

	return h
}
