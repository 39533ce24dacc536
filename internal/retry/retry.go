package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/amishk599/talentmatch/internal/model"
	"github.com/amishk599/talentmatch/internal/pipeline"
)

// Runner performs one pipeline run.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.RunResult, error)
}

// RetryRunner is a decorator that reruns a whole pipeline run after a
// transient fatal error, with exponential backoff and jitter. A rerun is safe
// because reconciliation converges from any partial state.
type RetryRunner struct {
	inner      Runner
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewRetryRunner wraps a Runner with retry logic.
// maxRetries is the number of additional attempts after the first failure.
// baseDelay is the delay before the first retry, doubled on each subsequent retry.
func NewRetryRunner(inner Runner, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetryRunner {
	return &RetryRunner{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// Run attempts a run, retrying on transient errors.
func (r *RetryRunner) Run(ctx context.Context, opts pipeline.Options) (*pipeline.RunResult, error) {
	res, err := r.inner.Run(ctx, opts)
	if err == nil {
		return res, nil
	}

	if !isRetryable(err) {
		return res, err
	}

	lastErr := err
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		delay := r.backoffDelay(attempt, lastErr)

		r.logger.Warn("retrying run after transient error",
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return res, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		res, err = r.inner.Run(ctx, opts)
		if err == nil {
			return res, nil
		}

		if !isRetryable(err) {
			return res, err
		}
		lastErr = err
	}

	return res, lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (r *RetryRunner) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := r.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	// Apply ±30% jitter
	jitter := float64(delay) * 0.3
	delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)

	return delay
}

// isRetryable returns true if the error represents a transient failure worth
// retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation: never retry.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Bad configuration will not fix itself.
	var cfgErr *model.ConfigError
	if errors.As(err, &cfgErr) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		// 429 Too Many Requests: retryable.
		if httpErr.StatusCode == 429 {
			return true
		}
		// 5xx: retryable.
		if httpErr.StatusCode >= 500 {
			return true
		}
		// 4xx (not 429): not retryable.
		return false
	}

	// Anything else (network, database, settings write) is retryable.
	return true
}
