package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amishk599/talentmatch/internal/model"
)

// Config is the root configuration for talentmatch.
type Config struct {
	Store        StoreConfig
	Matching     MatchingConfig
	Schedule     ScheduleConfig
	RateLimit    RateLimitConfig
	Notification NotificationConfig
	Filters      FilterConfig
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Driver string // "sqlite", "postgres" or "http"
	Path   string // sqlite database file
	DSN    string // postgres connection string
	HTTP   HTTPStoreConfig
}

// HTTPStoreConfig points at a record API service.
type HTTPStoreConfig struct {
	BaseURL  string
	APIToken string // expanded from env var by Load
	PageSize int
	Timeout  time.Duration
	Apps     AppsConfig
}

// AppsConfig maps each collection to its app id on the record API.
type AppsConfig struct {
	Jobs            string `yaml:"jobs"`
	Talents         string `yaml:"talents"`
	Recommendations string `yaml:"recommendations"`
	Settings        string `yaml:"settings"`
}

// MatchingConfig controls scoring and write batching.
type MatchingConfig struct {
	DefaultThreshold int // used until a threshold is stored
	ChunkSize        int
	Workers          int // jobs reconciled concurrently
}

// ScheduleConfig controls the daemon loop.
type ScheduleConfig struct {
	Interval   time.Duration
	LockFile   string
	MaxRetries int
	RetryDelay time.Duration
}

// RateLimitConfig paces calls to the record store. Zero disables pacing.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type         string // "log", "slack" or "redis"
	WebhookURL   string // required if type is "slack"
	RedisAddr    string
	RedisDB      int
	Stream       string
	StreamMaxLen int64
}

// FilterConfig holds the status values that mark records active.
type FilterConfig struct {
	Listing   string
	OpenState string
	Withdrawn string
}

const (
	defaultDriver       = "sqlite"
	defaultDBPath       = "talentmatch.db"
	defaultInterval     = 15 * time.Minute
	defaultLockFile     = "talentmatch.lock"
	defaultRetryDelay   = 5 * time.Second
	defaultHTTPTimeout  = 30 * time.Second
	defaultPageSize     = 500
	defaultChunkSize    = 100
	defaultWorkers      = 4
	defaultThreshold    = 3
	defaultStream       = "talentmatch:recommendations"
	slackWebhookPrefix  = "https://hooks.slack.com/"
	maxChunkSize        = 500
	defaultMaxRetries   = 2
	defaultNotification = "log"
)

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	Store        rawStoreConfig        `yaml:"store"`
	Matching     rawMatchingConfig     `yaml:"matching"`
	Schedule     rawScheduleConfig     `yaml:"schedule"`
	RateLimit    rawRateLimitConfig    `yaml:"rate_limit"`
	Notification rawNotificationConfig `yaml:"notification"`
	Filters      rawFilterConfig       `yaml:"filters"`
}

type rawStoreConfig struct {
	Driver string             `yaml:"driver"`
	Path   string             `yaml:"path"`
	DSN    string             `yaml:"dsn"`
	HTTP   rawHTTPStoreConfig `yaml:"http"`
}

type rawHTTPStoreConfig struct {
	BaseURL  string     `yaml:"base_url"`
	APIToken string     `yaml:"api_token"`
	PageSize int        `yaml:"page_size"`
	Timeout  string     `yaml:"timeout"`
	Apps     AppsConfig `yaml:"apps"`
}

type rawMatchingConfig struct {
	DefaultThreshold *int `yaml:"default_threshold"`
	ChunkSize        *int `yaml:"chunk_size"`
	Workers          *int `yaml:"workers"`
}

type rawScheduleConfig struct {
	Interval   string `yaml:"interval"`
	LockFile   string `yaml:"lock_file"`
	MaxRetries *int   `yaml:"max_retries"`
	RetryDelay string `yaml:"retry_delay"`
}

type rawRateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type rawNotificationConfig struct {
	Type         string `yaml:"type"`
	WebhookURL   string `yaml:"webhook_url"`
	RedisAddr    string `yaml:"redis_addr"`
	RedisDB      int    `yaml:"redis_db"`
	Stream       string `yaml:"stream"`
	StreamMaxLen int64  `yaml:"stream_max_len"`
}

type rawFilterConfig struct {
	Listing   string `yaml:"listing"`
	OpenState string `yaml:"open_state"`
	Withdrawn string `yaml:"withdrawn"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ConfigError{Err: fmt.Errorf("read config: %w", err)}
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes. Environment variables are expanded
// before parsing.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, &model.ConfigError{Err: fmt.Errorf("parse config: %w", err)}
	}

	interval, err := parseDuration("schedule.interval", raw.Schedule.Interval, defaultInterval)
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration("schedule.retry_delay", raw.Schedule.RetryDelay, defaultRetryDelay)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := parseDuration("store.http.timeout", raw.Store.HTTP.Timeout, defaultHTTPTimeout)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Store: StoreConfig{
			Driver: orDefault(strings.ToLower(raw.Store.Driver), defaultDriver),
			Path:   raw.Store.Path,
			DSN:    raw.Store.DSN,
			HTTP: HTTPStoreConfig{
				BaseURL:  strings.TrimRight(raw.Store.HTTP.BaseURL, "/"),
				APIToken: raw.Store.HTTP.APIToken,
				PageSize: raw.Store.HTTP.PageSize,
				Timeout:  httpTimeout,
				Apps:     raw.Store.HTTP.Apps,
			},
		},
		Matching: MatchingConfig{
			DefaultThreshold: intOr(raw.Matching.DefaultThreshold, defaultThreshold),
			ChunkSize:        intOr(raw.Matching.ChunkSize, defaultChunkSize),
			Workers:          intOr(raw.Matching.Workers, defaultWorkers),
		},
		Schedule: ScheduleConfig{
			Interval:   interval,
			LockFile:   orDefault(raw.Schedule.LockFile, defaultLockFile),
			MaxRetries: intOr(raw.Schedule.MaxRetries, defaultMaxRetries),
			RetryDelay: retryDelay,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: raw.RateLimit.RequestsPerSecond,
			Burst:             raw.RateLimit.Burst,
		},
		Notification: NotificationConfig{
			Type:         orDefault(strings.ToLower(raw.Notification.Type), defaultNotification),
			WebhookURL:   raw.Notification.WebhookURL,
			RedisAddr:    raw.Notification.RedisAddr,
			RedisDB:      raw.Notification.RedisDB,
			Stream:       orDefault(raw.Notification.Stream, defaultStream),
			StreamMaxLen: raw.Notification.StreamMaxLen,
		},
		Filters: FilterConfig{
			Listing:   raw.Filters.Listing,
			OpenState: raw.Filters.OpenState,
			Withdrawn: raw.Filters.Withdrawn,
		},
	}
	if cfg.Store.Driver == "sqlite" && cfg.Store.Path == "" {
		cfg.Store.Path = defaultDBPath
	}
	if cfg.Store.HTTP.PageSize == 0 {
		cfg.Store.HTTP.PageSize = defaultPageSize
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Store.DSN == "" {
			return invalid("store.dsn", "is required when driver is \"postgres\"")
		}
	case "http":
		h := cfg.Store.HTTP
		if h.BaseURL == "" {
			return invalid("store.http.base_url", "is required when driver is \"http\"")
		}
		if h.APIToken == "" {
			return invalid("store.http.api_token", "is required when driver is \"http\"")
		}
		apps := map[string]string{
			"jobs":            h.Apps.Jobs,
			"talents":         h.Apps.Talents,
			"recommendations": h.Apps.Recommendations,
			"settings":        h.Apps.Settings,
		}
		for _, name := range []string{"jobs", "talents", "recommendations", "settings"} {
			if apps[name] == "" {
				return invalid("store.http.apps."+name, "is required when driver is \"http\"")
			}
		}
		if h.PageSize < 0 {
			return invalid("store.http.page_size", fmt.Sprintf("must not be negative, got %d", h.PageSize))
		}
	default:
		return invalid("store.driver", fmt.Sprintf("must be sqlite, postgres or http, got %q", cfg.Store.Driver))
	}

	if cfg.Matching.DefaultThreshold < 0 {
		return invalid("matching.default_threshold", fmt.Sprintf("must not be negative, got %d", cfg.Matching.DefaultThreshold))
	}
	if cfg.Matching.ChunkSize < 1 || cfg.Matching.ChunkSize > maxChunkSize {
		return invalid("matching.chunk_size", fmt.Sprintf("must be between 1 and %d, got %d", maxChunkSize, cfg.Matching.ChunkSize))
	}
	if cfg.Matching.Workers < 1 {
		return invalid("matching.workers", fmt.Sprintf("must be at least 1, got %d", cfg.Matching.Workers))
	}

	if cfg.Schedule.Interval <= 0 {
		return invalid("schedule.interval", fmt.Sprintf("must be positive, got %v", cfg.Schedule.Interval))
	}
	if cfg.Schedule.MaxRetries < 0 {
		return invalid("schedule.max_retries", fmt.Sprintf("must not be negative, got %d", cfg.Schedule.MaxRetries))
	}

	if cfg.RateLimit.RequestsPerSecond < 0 {
		return invalid("rate_limit.requests_per_second", fmt.Sprintf("must not be negative, got %v", cfg.RateLimit.RequestsPerSecond))
	}

	switch cfg.Notification.Type {
	case "log":
	case "slack":
		if cfg.Notification.WebhookURL == "" {
			return invalid("notification.webhook_url", "is required when type is \"slack\"")
		}
		if !strings.HasPrefix(cfg.Notification.WebhookURL, slackWebhookPrefix) {
			return invalid("notification.webhook_url", "must start with "+slackWebhookPrefix)
		}
	case "redis":
		if cfg.Notification.RedisAddr == "" {
			return invalid("notification.redis_addr", "is required when type is \"redis\"")
		}
	default:
		return invalid("notification.type", fmt.Sprintf("must be log, slack or redis, got %q", cfg.Notification.Type))
	}

	return nil
}

func invalid(field, msg string) error {
	return &model.ConfigError{Field: field, Err: errors.New(msg)}
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &model.ConfigError{Field: field, Err: fmt.Errorf("parse %q: %w", raw, err)}
	}
	return d, nil
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
