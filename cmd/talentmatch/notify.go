package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/talentmatch/internal/notifier"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test notification",
	Long:  "Sends a test recommendation event using the configured notifier.",
	RunE:  runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

// pinger is implemented by notifiers with a connection to check.
type pinger interface {
	Ping(ctx context.Context) error
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, jsonLogs)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	n, closeNotifier := setupNotifier(cfg, &http.Client{Timeout: 30 * time.Second}, logger)
	defer closeNotifier()

	if p, ok := n.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			logger.Error("notifier unreachable", "error", err)
			os.Exit(1)
		}
	}

	if err := notifier.SendTestMessage(ctx, n); err != nil {
		logger.Error("test notification failed", "error", err)
		os.Exit(1)
	}
	logger.Info("test notification sent successfully", "type", cfg.Notification.Type)
	return nil
}
