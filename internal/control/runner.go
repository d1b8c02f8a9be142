package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/collegemedia/jobrunner/internal/breaker"
	"github.com/collegemedia/jobrunner/internal/core/config"
	"github.com/collegemedia/jobrunner/internal/health"
	redisclient "github.com/collegemedia/jobrunner/internal/infra/redis"
	"github.com/collegemedia/jobrunner/internal/infra/storage"
	"github.com/collegemedia/jobrunner/internal/infra/storage/memory"
	"github.com/collegemedia/jobrunner/internal/infra/storage/postgres"
	"github.com/collegemedia/jobrunner/internal/runner"
	"github.com/collegemedia/jobrunner/migrations"

	"github.com/pressly/goose/v3"
)

// Runner is the main application struct that manages the worker lifecycle.
type Runner struct {
	cfg          Config
	registry     *runner.Registry
	workers      map[string]*runner.Worker
	redrivers    map[string]*runner.Redriver
	pruners      map[string]*runner.Pruner
	healthMon    *health.Monitor
	healthServer *health.Server
	jobs         storage.JobRepository
	dead         storage.DeadLetterRepository
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// Config holds the application configuration.
type Config struct {
	Port           int
	Queues         []config.QueueConfig
	Database       postgres.Config
	Redis          redisclient.Config
	RedriveEnabled bool // CLI flag
}

// NewRunner creates a new Runner instance with all dependencies initialized.
func NewRunner(cfg Config, registry *runner.Registry) (*Runner, error) {
	if len(cfg.Queues) == 0 {
		return nil, fmt.Errorf("no queues configured")
	}

	// 1. Initialize Storage
	var jobs storage.JobRepository
	var dead storage.DeadLetterRepository
	var db *postgres.DB
	var store *memory.MemoryStorage

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run embedded migrations
		goose.SetBaseFS(migrations.FS)
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "."); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		jobs = postgres.NewJobRepo(db)
		db.StartMetricsCollector(context.Background())
		slog.Info("Using PostgreSQL storage")
	} else {
		store = memory.NewMemoryStorage()
		jobs = memory.NewJobRepo(store)
		slog.Info("Using Memory storage")
	}

	// 2. Initialize Dead-Letter Queue
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		dead = redisclient.NewDeadLetterRepo(redisClient)
		slog.Info("Using Redis dead-letter queue")
	} else {
		if store == nil {
			store = memory.NewMemoryStorage()
		}
		dead = memory.NewDeadLetterRepo(store)
		slog.Info("Using Memory dead-letter queue")
	}

	// 3. Initialize Workers, Redrivers and Pruners per Queue
	workers := make(map[string]*runner.Worker)
	redrivers := make(map[string]*runner.Redriver)
	pruners := make(map[string]*runner.Pruner)
	queueNames := make([]string, 0, len(cfg.Queues))

	for _, q := range cfg.Queues {
		queueNames = append(queueNames, q.Name)

		brk := breaker.New(breaker.Config{
			FailureThreshold: q.Breaker.FailureThreshold,
			Cooldown:         q.Breaker.Cooldown,
		})
		workers[q.Name] = runner.NewWorker(q, jobs, dead, registry, brk)

		if cfg.RedriveEnabled {
			var locker runner.RedriveLocker
			if redisClient != nil {
				locker = redisClient
			}
			redrivers[q.Name] = runner.NewRedriver(q, jobs, dead, nil, locker)
		}

		if q.Retention > 0 {
			pruners[q.Name] = runner.NewPruner(q, jobs)
		}
	}

	// 4. Initialize Health Monitoring
	var dbPinger, redisPinger health.Pinger
	if db != nil {
		dbPinger = db
	}
	if redisClient != nil {
		redisPinger = redisClient
	}
	healthMon := health.NewMonitor(queueNames, jobs, dead, dbPinger, redisPinger)
	healthServer := health.NewServer(healthMon, cfg.Port)

	return &Runner{
		cfg:          cfg,
		registry:     registry,
		workers:      workers,
		redrivers:    redrivers,
		pruners:      pruners,
		healthMon:    healthMon,
		healthServer: healthServer,
		jobs:         jobs,
		dead:         dead,
		db:           db,
		redisClient:  redisClient,
		log:          slog.Default(),
	}, nil
}

// Jobs exposes the job repository for enqueueing and inspection.
func (r *Runner) Jobs() storage.JobRepository {
	return r.jobs
}

// DeadLetters exposes the dead-letter repository.
func (r *Runner) DeadLetters() storage.DeadLetterRepository {
	return r.dead
}

// Start starts the runner and all its components.
func (r *Runner) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := r.healthServer.Start(); err != nil {
			r.log.Error("Health server failed", "error", err)
		}
	}()

	// Start Workers
	for name, w := range r.workers {
		r.log.Info("Starting worker pool", "queue", name)
		go w.Start(ctx)
	}

	// Start Redrivers
	for name, rd := range r.redrivers {
		r.log.Info("Starting redriver", "queue", name)
		go rd.Start(ctx)
	}

	// Start Pruners
	for name, p := range r.pruners {
		r.log.Info("Starting pruner", "queue", name)
		go p.Start(ctx)
	}

	return nil
}

// Stop stops the runner.
func (r *Runner) Stop(ctx context.Context) error {
	r.log.Info("Stopping Runner...")

	// Close Redis
	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			r.log.Warn("Failed to close Redis", "error", err)
		}
	}

	// Close Database
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.log.Warn("Failed to close database", "error", err)
		}
	}

	// Stop Health Server
	return r.healthServer.Stop(ctx)
}
