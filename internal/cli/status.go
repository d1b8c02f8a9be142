package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/collegemedia/jobrunner/internal/core/config"
	"github.com/collegemedia/jobrunner/internal/core/job"
	"github.com/collegemedia/jobrunner/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-queue job counts",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
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

	repo := postgres.NewJobRepo(db)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "QUEUE\tQUEUED\tRUNNING\tSUCCEEDED\tFAILED\tDEAD")

	for _, q := range cfg.Queues {
		counts, err := repo.CountByStatus(ctx, q.Name)
		if err != nil {
			slog.Error("Failed to count jobs", "queue", q.Name, "error", err)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n",
			q.Name,
			counts[job.StatusQueued],
			counts[job.StatusRunning],
			counts[job.StatusSucceeded],
			counts[job.StatusFailed],
			counts[job.StatusDead],
		)
	}

	_ = w.Flush()
}
