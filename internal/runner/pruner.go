package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/collegemedia/jobrunner/internal/core/config"
	"github.com/collegemedia/jobrunner/internal/infra/storage"
)

// Pruner deletes finished job rows based on the queue's retention policy.
type Pruner struct {
	cfg  config.QueueConfig
	jobs storage.JobRepository
	log  *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(cfg config.QueueConfig, jobs storage.JobRepository) *Pruner {
	return &Pruner{
		cfg:  cfg,
		jobs: jobs,
		log:  slog.Default().With("queue", cfg.Name),
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.cfg.Retention <= 0 {
		return // Retention disabled
	}

	// Check interval: 10% of the retention period, clamped to [1m, 1h]
	interval := min(p.cfg.Retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.cfg.Retention)

	removed, err := p.jobs.DeleteFinishedBefore(ctx, p.cfg.Name, cutoff)
	if err != nil {
		p.log.Error("failed to prune finished jobs", "error", err)
		return
	}
	if removed > 0 {
		p.log.Info("pruned finished jobs", "count", removed)
	}
}
