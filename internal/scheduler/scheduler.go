package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/amishk599/talentmatch/internal/pipeline"
	"github.com/amishk599/talentmatch/internal/runlock"
)

// Runner performs one pipeline run.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.RunResult, error)
}

// Scheduler owns the main loop: it runs the pipeline once immediately, then
// again after every interval.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	opts     pipeline.Options
	logger   *slog.Logger

	// OnResult, when set, receives the result of every attempted run.
	OnResult func(res *pipeline.RunResult, err error)
}

// NewScheduler creates a scheduler that triggers a run at the given interval.
func NewScheduler(runner Runner, interval time.Duration, opts pipeline.Options, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		opts:     opts,
		logger:   logger,
	}
}

// Run starts the loop. It runs one immediate cycle, then ticks on the
// configured interval. It returns nil when ctx is cancelled (graceful shutdown).
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler",
		"interval", s.interval.String(),
		"full", s.opts.Full,
	)

	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down scheduler")
			return nil
		case <-time.After(s.interval):
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	res, err := s.runner.Run(ctx, s.opts)
	if s.OnResult != nil {
		s.OnResult(res, err)
	}

	switch {
	case err == nil:
		s.logger.Debug("scheduled run finished", "run_id", res.RunID)
	case errors.Is(err, runlock.ErrLocked):
		s.logger.Warn("skipping scheduled run, previous run still in progress")
	case ctx.Err() != nil:
		// Shutdown in progress; the loop exits on the next select.
	default:
		s.logger.Error("scheduled run failed", "error", err)
	}
}
