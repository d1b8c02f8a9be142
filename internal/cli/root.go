package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/collegemedia/jobrunner/internal/control"
	"github.com/collegemedia/jobrunner/internal/core/config"
	"github.com/collegemedia/jobrunner/internal/runner"
)

var (
	cfgPath string
	isDebug bool
	redrive bool
)

var rootCmd = &cobra.Command{
	Use:   "jobrunner",
	Short: "College Media job runner",
	Long:  `Jobrunner executes College Media background jobs with retries, backoff and a dead-letter queue.`,
	Run:   runService,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&redrive, "redrive", true, "enable dead-letter redriving")
}

func initLogger(level slog.Level) {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})))
}

func runService(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	// Load Configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		initLogger(slog.LevelInfo)
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	initLogger(slogLevel)

	// Register handlers. Applications embedding the runner register their
	// own; the standalone binary ships an echo handler for smoke testing.
	registry := runner.NewRegistry()
	if err := registry.Register("echo", echoHandler); err != nil {
		slog.Error("Failed to register handlers", "error", err)
		os.Exit(1)
	}

	// Transform config
	controlCfg := control.Config{
		Port:           cfg.Server.Port,
		Queues:         cfg.Queues,
		Database:       cfg.Database,
		Redis:          cfg.Redis,
		RedriveEnabled: redrive,
	}

	// Initialize Runner
	app, err := control.NewRunner(controlCfg, registry)
	if err != nil {
		slog.Error("Failed to initialize Runner", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start Runner", "error", err)
		os.Exit(1)
	}

	slog.Info("Runner started", "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}

func echoHandler(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	slog.Info("echo job", "payload", string(payload))
	return payload, nil
}
