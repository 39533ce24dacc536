package model

import (
	"fmt"
	"time"
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ConfigError reports missing or invalid configuration. Always fatal.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// UpstreamFetchError reports that jobs or talents could not be fetched.
// It aborts the run before any write happens.
type UpstreamFetchError struct {
	Stage string // "jobs" or "talents"
	Err   error
}

func (e *UpstreamFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Stage, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// JobError attributes a reconciliation or apply failure to one job.
type JobError struct {
	JobID string
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s: %v", e.JobID, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// ChunkError reports a failed batch write.
type ChunkError struct {
	Op    string // "delete", "update" or "create"
	Index int    // zero-based chunk index within the operation
	Size  int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s chunk %d (%d records): %v", e.Op, e.Index, e.Size, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// SettingsPersistError reports that the run marker could not be written.
// The next run cannot trust incremental mode and should run in full mode.
type SettingsPersistError struct {
	Err error
}

func (e *SettingsPersistError) Error() string {
	return fmt.Sprintf("persist run settings: %v", e.Err)
}

func (e *SettingsPersistError) Unwrap() error { return e.Err }
