package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/amishk599/talentmatch/internal/model"
	"github.com/amishk599/talentmatch/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockRunner calls a function on each invocation, tracking call count.
type mockRunner struct {
	calls int
	fn    func(attempt int) error
}

func (m *mockRunner) Run(_ context.Context, _ pipeline.Options) (*pipeline.RunResult, error) {
	m.calls++
	if err := m.fn(m.calls); err != nil {
		return &pipeline.RunResult{Error: err.Error()}, err
	}
	return &pipeline.RunResult{Success: true}, nil
}

func fetchErr(status int) error {
	return &model.UpstreamFetchError{Stage: "jobs", Err: &model.HTTPError{StatusCode: status, Err: errors.New("upstream")}}
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	mock := &mockRunner{fn: func(_ int) error { return nil }}

	rr := NewRetryRunner(mock, 2, 10*time.Millisecond, discardLogger())
	res, err := rr.Run(context.Background(), pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("unexpected result: %+v", res)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call, got %d", mock.calls)
	}
}

func TestRetry_RetriesOn5xx_SucceedsOnSecondAttempt(t *testing.T) {
	mock := &mockRunner{fn: func(attempt int) error {
		if attempt == 1 {
			return fetchErr(503)
		}
		return nil
	}}

	rr := NewRetryRunner(mock, 2, 10*time.Millisecond, discardLogger())
	res, err := rr.Run(context.Background(), pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("unexpected result: %+v", res)
	}
	if mock.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.calls)
	}
}

func TestRetry_RetriesSettingsPersistFailure(t *testing.T) {
	mock := &mockRunner{fn: func(attempt int) error {
		if attempt == 1 {
			return &model.SettingsPersistError{Err: errors.New("database is locked")}
		}
		return nil
	}}

	rr := NewRetryRunner(mock, 1, 10*time.Millisecond, discardLogger())
	if _, err := rr.Run(context.Background(), pipeline.Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.calls)
	}
}

func TestRetry_DoesNotRetryOn4xx(t *testing.T) {
	mock := &mockRunner{fn: func(_ int) error { return fetchErr(401) }}

	rr := NewRetryRunner(mock, 2, 10*time.Millisecond, discardLogger())
	_, err := rr.Run(context.Background(), pipeline.Options{})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 401 {
		t.Fatalf("expected HTTPError with status 401, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", mock.calls)
	}
}

func TestRetry_DoesNotRetryConfigError(t *testing.T) {
	mock := &mockRunner{fn: func(_ int) error {
		return &model.ConfigError{Field: "store.dsn", Err: errors.New("required")}
	}}

	rr := NewRetryRunner(mock, 3, 10*time.Millisecond, discardLogger())
	if _, err := rr.Run(context.Background(), pipeline.Options{}); err == nil {
		t.Fatal("expected error, got nil")
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", mock.calls)
	}
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	mock := &mockRunner{fn: func(_ int) error { return fetchErr(500) }}

	rr := NewRetryRunner(mock, 2, 10*time.Millisecond, discardLogger())
	res, err := rr.Run(context.Background(), pipeline.Options{})
	if err == nil {
		t.Fatal("expected error after max retries, got nil")
	}
	if res == nil || res.Success {
		t.Fatalf("expected the last failed result, got %+v", res)
	}
	// 1 initial + 2 retries = 3
	if mock.calls != 3 {
		t.Fatalf("expected 3 calls (1 + 2 retries), got %d", mock.calls)
	}
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	mock := &mockRunner{fn: func(_ int) error { return fetchErr(500) }}

	ctx, cancel := context.WithCancel(context.Background())
	// Cancel immediately so the backoff sleep is interrupted.
	cancel()

	rr := NewRetryRunner(mock, 2, time.Second, discardLogger())
	_, err := rr.Run(ctx, pipeline.Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", mock.calls)
	}
}

func TestBackoffDelay_PrefersRetryAfter(t *testing.T) {
	rr := NewRetryRunner(nil, 2, time.Second, discardLogger())
	err := &model.UpstreamFetchError{Stage: "talents", Err: &model.HTTPError{StatusCode: 429, RetryAfter: 42 * time.Second}}

	if got := rr.backoffDelay(1, err); got != 42*time.Second {
		t.Errorf("delay = %v, want 42s", got)
	}
}

func TestBackoffDelay_ExponentialWithJitter(t *testing.T) {
	rr := NewRetryRunner(nil, 3, time.Second, discardLogger())

	for attempt, base := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second} {
		got := rr.backoffDelay(attempt, errors.New("boom"))
		lo, hi := time.Duration(float64(base)*0.7), time.Duration(float64(base)*1.3)
		if got < lo || got > hi {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", attempt, got, lo, hi)
		}
	}
}
