package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/collegemedia/jobrunner/internal/core/config"
	"github.com/collegemedia/jobrunner/internal/core/job"
	"github.com/collegemedia/jobrunner/internal/infra/storage/postgres"
)

var enqueuePayload string

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [queue] [name]",
	Short: "Enqueue a job onto a queue",
	Args:  cobra.ExactArgs(2),
	Run:   runEnqueue,
}

func init() {
	enqueueCmd.Flags().StringVar(&enqueuePayload, "payload", "{}", "JSON payload for the job")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) {
	queue, name := args[0], args[1]

	if !json.Valid([]byte(enqueuePayload)) {
		fmt.Printf("Invalid JSON payload: %s\n", enqueuePayload)
		os.Exit(1)
	}

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

	j := &job.Job{
		ID:      uuid.New().String(),
		Queue:   queue,
		Name:    name,
		Payload: json.RawMessage(enqueuePayload),
	}
	if err := postgres.NewJobRepo(db).Enqueue(ctx, j); err != nil {
		slog.Error("Failed to enqueue job", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Enqueued job %s on queue %s\n", j.ID, queue)
}
