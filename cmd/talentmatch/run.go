package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/talentmatch/internal/pipeline"
	"github.com/amishk599/talentmatch/internal/report"
	"github.com/amishk599/talentmatch/internal/runlock"
)

var (
	runFull   bool
	runDryRun bool
	runOutput string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation and exit",
	Long:  "One-shot run: fetches jobs and talents, reconciles every active job, prints a summary.",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().BoolVar(&runFull, "full", false, "rescore every pair regardless of timestamps")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "compute changes but do not write them")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "table", "output format: table or json")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, jsonLogs)

	if runOutput != "table" && runOutput != "json" {
		return fmt.Errorf("unknown output format %q", runOutput)
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeBackend()
	backend = decorateBackend(backend, cfg, runDryRun, logger)

	n, closeNotifier := setupNotifier(cfg, &http.Client{Timeout: 30 * time.Second}, logger)
	defer closeNotifier()

	runner, err := buildRunner(cfg, backend, n, runDryRun, logger)
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx, pipeline.Options{Full: runFull})
	if errors.Is(err, runlock.ErrLocked) {
		logger.Warn("another run is in progress, exiting", "lock", cfg.Schedule.LockFile)
		return nil
	}

	if res != nil {
		if runOutput == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(res); encErr != nil {
				return encErr
			}
		} else {
			fmt.Print(report.Render(res))
		}
	}

	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	if failed := pipeline.FailedJobs(res.Jobs); failed != nil {
		logger.Warn("some jobs failed and will be retried next run", "failed", res.Summary.JobsFailed)
		return failed
	}
	return nil
}
