package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/amishk599/talentmatch/internal/adapter"
	"github.com/amishk599/talentmatch/internal/config"
	"github.com/amishk599/talentmatch/internal/filter"
	"github.com/amishk599/talentmatch/internal/model"
	"github.com/amishk599/talentmatch/internal/notifier"
	"github.com/amishk599/talentmatch/internal/pipeline"
	"github.com/amishk599/talentmatch/internal/ratelimit"
	"github.com/amishk599/talentmatch/internal/retry"
	"github.com/amishk599/talentmatch/internal/runlock"
	"github.com/amishk599/talentmatch/internal/settings"
	"github.com/amishk599/talentmatch/internal/store"
)

var (
	cfgPath  string
	debug    bool
	jsonLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "talentmatch",
	Short: "Keep job recommendations in sync with talent profiles",
	Long:  "talentmatch scores active talents against open jobs and reconciles the stored recommendation set.",
	// With no subcommand the binary runs the daemon.
	RunE:          runStart,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: TALENTMATCH_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "emit logs as JSON")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > TALENTMATCH_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("TALENTMATCH_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// setupLogger writes to stderr so stdout stays clean for command output.
func setupLogger(dbg, asJSON bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	if asJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newActivityFilter(cfg *config.Config) *filter.ActivityFilter {
	return filter.NewActivityFilter(cfg.Filters.Listing, cfg.Filters.OpenState, cfg.Filters.Withdrawn)
}

// openBackend opens the configured record store. The returned close func is
// never nil.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (model.Backend, func(), error) {
	f := newActivityFilter(cfg)

	switch cfg.Store.Driver {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.Store.DSN, f)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres store")
		return pg, func() { _ = pg.Close() }, nil
	case "http":
		h := cfg.Store.HTTP
		client := adapter.NewClient(h.BaseURL, h.APIToken, h.PageSize, &http.Client{Timeout: h.Timeout})
		apps := adapter.Apps{
			Jobs:            h.Apps.Jobs,
			Talents:         h.Apps.Talents,
			Recommendations: h.Apps.Recommendations,
			Settings:        h.Apps.Settings,
		}
		logger.Info("using record api store", "base_url", h.BaseURL)
		return adapter.NewRecordAPIStore(client, apps, f), func() {}, nil
	default:
		lite, err := store.NewSQLiteStore(cfg.Store.Path, f)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite store", "path", cfg.Store.Path)
		return lite, func() { _ = lite.Close() }, nil
	}
}

// decorateBackend paces store calls and, in dry-run mode, drops every write.
func decorateBackend(backend model.Backend, cfg *config.Config, dryRun bool, logger *slog.Logger) model.Backend {
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter := ratelimit.NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		backend = ratelimit.NewRateLimitedStore(backend, limiter)
		logger.Info("store rate limit configured",
			"requests_per_second", cfg.RateLimit.RequestsPerSecond,
			"burst", cfg.RateLimit.Burst,
		)
	}
	if dryRun {
		logger.Info("dry-run mode enabled, no writes or notifications will be sent")
		backend = store.NewDryRunStore(backend, logger)
	}
	return backend
}

// setupNotifier returns the configured notifier and a close func that is never nil.
func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (model.Notifier, func()) {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger), func() {}
	case "redis":
		logger.Info("using redis notifier", "addr", cfg.Notification.RedisAddr, "stream", cfg.Notification.Stream)
		n := notifier.NewRedisNotifier(&redis.Options{
			Addr: cfg.Notification.RedisAddr,
			DB:   cfg.Notification.RedisDB,
		}, cfg.Notification.Stream, cfg.Notification.StreamMaxLen, logger)
		return n, func() { _ = n.Close() }
	default:
		return notifier.NewLogNotifier(logger), func() {}
	}
}

func newSettingsStore(cfg *config.Config, backend model.SettingsBackend, logger *slog.Logger) *settings.Store {
	return settings.NewStore(backend, cfg.Matching.DefaultThreshold, logger)
}

// buildRunner wires the pipeline behind whole-run retries and the run lock.
func buildRunner(cfg *config.Config, backend model.Backend, n model.Notifier, dryRun bool, logger *slog.Logger) (*runlock.LockedRunner, error) {
	p := pipeline.New(backend, newSettingsStore(cfg, backend, logger), n, pipeline.Config{
		ChunkSize: cfg.Matching.ChunkSize,
		Workers:   cfg.Matching.Workers,
		Filter:    newActivityFilter(cfg),
		DryRun:    dryRun,
	}, logger)

	lock, err := runlock.New(cfg.Schedule.LockFile)
	if err != nil {
		return nil, fmt.Errorf("run lock: %w", err)
	}

	r := retry.NewRetryRunner(p, cfg.Schedule.MaxRetries, cfg.Schedule.RetryDelay, logger)
	return runlock.NewLockedRunner(r, lock), nil
}
