package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/talentmatch/internal/pipeline"
	"github.com/amishk599/talentmatch/internal/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the reconciliation daemon",
	Long:  "Start the scheduler daemon; runs immediately, then every schedule.interval until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, jsonLogs)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"driver", cfg.Store.Driver,
		"interval", cfg.Schedule.Interval.String(),
		"default_threshold", cfg.Matching.DefaultThreshold,
		"chunk_size", cfg.Matching.ChunkSize,
		"workers", cfg.Matching.Workers,
		"notification", cfg.Notification.Type,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeBackend()
	backend = decorateBackend(backend, cfg, false, logger)

	n, closeNotifier := setupNotifier(cfg, &http.Client{Timeout: 30 * time.Second}, logger)
	defer closeNotifier()

	runner, err := buildRunner(cfg, backend, n, false, logger)
	if err != nil {
		logger.Error("failed to set up runner", "error", err)
		os.Exit(1)
	}

	sched := scheduler.NewScheduler(runner, cfg.Schedule.Interval, pipeline.Options{}, logger)
	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
