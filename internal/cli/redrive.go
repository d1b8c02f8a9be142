package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/collegemedia/jobrunner/internal/core/config"
	"github.com/collegemedia/jobrunner/internal/core/job"
	redisclient "github.com/collegemedia/jobrunner/internal/infra/redis"
	"github.com/collegemedia/jobrunner/internal/infra/storage"
	"github.com/collegemedia/jobrunner/internal/infra/storage/postgres"
)

var redriveCmd = &cobra.Command{
	Use:   "redrive [queue]",
	Short: "Requeue all dead-lettered jobs on a queue immediately",
	Args:  cobra.ExactArgs(1),
	Run:   runRedrive,
}

func init() {
	rootCmd.AddCommand(redriveCmd)
}

func runRedrive(cmd *cobra.Command, args []string) {
	queue := args[0]

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	rc, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rc.Close()
	}()

	jobs := postgres.NewJobRepo(db)
	dead := redisclient.NewDeadLetterRepo(rc)

	djs, err := dead.GetAll(ctx, queue)
	if err != nil {
		slog.Error("Failed to list dead jobs", "error", err)
		os.Exit(1)
	}

	redriven := 0
	for _, dj := range djs {
		// Entries stick around while a redriven job is in flight; only
		// push the ones whose row is actually failed or dead.
		j, err := jobs.Get(ctx, dj.ID)
		if errors.Is(err, storage.ErrJobNotFound) {
			_ = dead.MarkResolved(ctx, queue, dj.ID)
			continue
		}
		if err != nil {
			slog.Warn("Failed to look up job", "job_id", dj.ID, "error", err)
			continue
		}
		if j.Status != job.StatusFailed && j.Status != job.StatusDead {
			continue
		}
		if err := jobs.Requeue(ctx, dj.ID); err != nil {
			slog.Warn("Failed to requeue job", "job_id", dj.ID, "error", err)
			continue
		}
		if err := dead.IncrementRetry(ctx, queue, dj.ID); err != nil {
			slog.Warn("Failed to record redrive", "job_id", dj.ID, "error", err)
			continue
		}
		redriven++
	}

	fmt.Printf("Redriven %d of %d dead jobs on queue %s\n", redriven, len(djs), queue)
}
