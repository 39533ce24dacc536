package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amishk599/talentmatch/internal/pipeline"
	"github.com/amishk599/talentmatch/internal/runlock"
)

// --- Mock implementations ---

type CountingRunner struct {
	calls atomic.Int32
	full  atomic.Bool
	err   error
}

func (r *CountingRunner) Run(_ context.Context, opts pipeline.Options) (*pipeline.RunResult, error) {
	r.calls.Add(1)
	r.full.Store(opts.Full)
	if r.err != nil {
		return &pipeline.RunResult{Error: r.err.Error()}, r.err
	}
	return &pipeline.RunResult{Success: true, RunID: "run"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Tests ---

func TestRun_CancelReturnsPromptly(t *testing.T) {
	s := NewScheduler(&CountingRunner{}, time.Hour, pipeline.Options{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error on cancel, got: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not return within 2s after cancel")
	}
}

func TestRun_ImmediateRunThenInterval(t *testing.T) {
	runner := &CountingRunner{}
	s := NewScheduler(runner, 100*time.Millisecond, pipeline.Options{Full: true}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	// Allow time for at least two passes (run → sleep interval → run).
	time.Sleep(250 * time.Millisecond)
	cancel()
	<-done

	if got := runner.calls.Load(); got < 2 {
		t.Errorf("runner calls = %d, want >= 2", got)
	}
	if !runner.full.Load() {
		t.Error("options were not passed to the runner")
	}
}

func TestRun_FailedRunDoesNotStopLoop(t *testing.T) {
	runner := &CountingRunner{err: errors.New("fetch jobs: 503")}
	s := NewScheduler(runner, 50*time.Millisecond, pipeline.Options{}, discardLogger())

	var results atomic.Int32
	s.OnResult = func(res *pipeline.RunResult, err error) {
		if err != nil && res != nil && !res.Success {
			results.Add(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(180 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v, want nil", err)
	}

	if got := runner.calls.Load(); got < 2 {
		t.Errorf("runner calls = %d, want >= 2 after failures", got)
	}
	if results.Load() != runner.calls.Load() {
		t.Errorf("OnResult calls = %d, want %d", results.Load(), runner.calls.Load())
	}
}

func TestRun_LockedRunIsSkipped(t *testing.T) {
	runner := &CountingRunner{err: fmt.Errorf("run.lock: %w", runlock.ErrLocked)}
	s := NewScheduler(runner, time.Hour, pipeline.Options{}, discardLogger())

	var sawLocked atomic.Bool
	s.OnResult = func(_ *pipeline.RunResult, err error) {
		sawLocked.Store(errors.Is(err, runlock.ErrLocked))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if !sawLocked.Load() {
		t.Error("expected the locked run to be reported")
	}
}
