// Package pipeline runs the recommendation reconciliation in three stages:
// gather, reconcile every job, finalize. Each stage boundary is a plain
// JSON-serializable struct so the stages could also run as separate steps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/talentmatch/internal/batch"
	"github.com/amishk599/talentmatch/internal/fetcher"
	"github.com/amishk599/talentmatch/internal/filter"
	"github.com/amishk599/talentmatch/internal/model"
	"github.com/amishk599/talentmatch/internal/reconcile"
	"github.com/amishk599/talentmatch/internal/scorer"
	"github.com/amishk599/talentmatch/internal/settings"
)

// Options control a single run.
type Options struct {
	Full bool // recompute every pair regardless of timestamps
}

// Config holds the tunables of the pipeline.
type Config struct {
	ChunkSize int
	Workers   int
	Filter    *filter.ActivityFilter
	DryRun    bool // store drops writes; no notifications are sent
}

// GatherOutput is the result of stage 1 and the input of stage 2.
type GatherOutput struct {
	Jobs            []model.Job       `json:"jobs"`
	Talents         []model.Talent    `json:"talents"`
	Settings        model.RunSettings `json:"settings"`
	ForceFullMode   bool              `json:"forceFullMode"`
	ActiveTalentIDs []string          `json:"activeTalentIds"`
	StartedAt       time.Time         `json:"startedAt"` // becomes the next run marker
}

// JobResult is the outcome of stage 2 for one job.
type JobResult struct {
	JobID    string      `json:"jobId"`
	JobTitle string      `json:"jobTitle"`
	Stats    model.Stats `json:"stats"`
	Error    string      `json:"error,omitempty"`

	Err error `json:"-"`
}

// Summary aggregates the stats of every successful job.
type Summary struct {
	JobsProcessed  int `json:"jobsProcessed"`
	JobsFailed     int `json:"jobsFailed"`
	TotalCreated   int `json:"totalCreated"`
	TotalUpdated   int `json:"totalUpdated"`
	TotalDeleted   int `json:"totalDeleted"`
	TotalKept      int `json:"totalKept"`
	TotalProtected int `json:"totalProtected"`
}

// RunResult is the output of stage 3.
type RunResult struct {
	RunID      string      `json:"runId"`
	Success    bool        `json:"success"`
	Summary    Summary     `json:"summary"`
	Threshold  int         `json:"threshold"`
	FullMode   bool        `json:"fullMode"`
	ExecutedAt time.Time   `json:"executedAt"`
	Jobs       []JobResult `json:"jobs,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Pipeline sequences fetch, reconcile, apply and settings bookkeeping.
type Pipeline struct {
	store      model.RecordStore
	fetcher    *fetcher.CandidateFetcher
	settings   *settings.Store
	reconciler *reconcile.Reconciler
	notifier   model.Notifier
	chunkSize  int
	workers    int
	dryRun     bool
	now        func() time.Time
	logger     *slog.Logger
}

// New wires a pipeline. notifier may be nil.
func New(store model.RecordStore, settingsStore *settings.Store, notifier model.Notifier, cfg Config, logger *slog.Logger) *Pipeline {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		store:      store,
		fetcher:    fetcher.NewCandidateFetcher(store, cfg.Filter, logger),
		settings:   settingsStore,
		reconciler: reconcile.NewReconciler(store, scorer.New(), logger),
		notifier:   notifier,
		chunkSize:  cfg.ChunkSize,
		workers:    workers,
		dryRun:     cfg.DryRun,
		now:        time.Now,
		logger:     logger,
	}
}

// DecideFullMode reports whether every pair must be rescored, and why.
// A lowered threshold can qualify pairs that were skipped under the old one.
func DecideFullMode(s model.RunSettings, requested bool) (bool, string) {
	switch {
	case requested:
		return true, "requested"
	case s.LastBatchTime == nil:
		return true, "first run"
	case s.LastThreshold != nil && s.Threshold < *s.LastThreshold:
		return true, "threshold lowered"
	default:
		return false, ""
	}
}

// Run executes all three stages. Fatal errors before finalize return a
// result with Success=false together with the error; per-job failures only
// show up in the job list and the summary's failure count.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*RunResult, error) {
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	start := p.now()

	gathered, err := p.Gather(ctx, opts)
	if err != nil {
		logger.Error("run aborted", "stage", "gather", "error", err)
		return &RunResult{RunID: runID, ExecutedAt: start.UTC(), Error: err.Error()}, err
	}

	results := p.ReconcileJobs(ctx, gathered)
	if err := ctx.Err(); err != nil {
		// Leave the run marker alone so the next run redoes this window.
		logger.Warn("run cancelled before finalize", "error", err)
		return &RunResult{RunID: runID, ExecutedAt: start.UTC(), Jobs: results, Error: err.Error()}, err
	}

	res, err := p.Finalize(ctx, gathered, results)
	res.RunID = runID
	res.FullMode = gathered.ForceFullMode
	if err != nil {
		logger.Error("run finalize failed", "stage", "finalize", "error", err)
		return res, err
	}

	logger.Info("run complete",
		"full", res.FullMode,
		"threshold", res.Threshold,
		"jobs", res.Summary.JobsProcessed,
		"failed", res.Summary.JobsFailed,
		"created", res.Summary.TotalCreated,
		"updated", res.Summary.TotalUpdated,
		"deleted", res.Summary.TotalDeleted,
		"kept", res.Summary.TotalKept,
		"protected", res.Summary.TotalProtected,
		"duration", p.now().Sub(start).String(),
	)
	return res, nil
}

// Gather is stage 1: settings, run mode, jobs and talents.
func (p *Pipeline) Gather(ctx context.Context, opts Options) (*GatherOutput, error) {
	startedAt := p.now().UTC()
	s := p.settings.Get(ctx)
	full, reason := DecideFullMode(s, opts.Full)

	jobs, err := p.fetcher.FetchJobs(ctx)
	if err != nil {
		return nil, err
	}
	talents, err := p.fetcher.FetchTalents(ctx)
	if err != nil {
		return nil, err
	}

	ids := fetcher.ActiveIDs(talents)

	p.logger.Info("gathered candidates",
		"stage", "gather",
		"jobs", len(jobs),
		"talents", len(talents),
		"threshold", s.Threshold,
		"full", full,
		"full_reason", reason,
	)

	return &GatherOutput{
		Jobs:            jobs,
		Talents:         talents,
		Settings:        s,
		ForceFullMode:   full,
		ActiveTalentIDs: ids,
		StartedAt:       startedAt,
	}, nil
}

// ReconcileJobs is stage 2. Jobs own disjoint record sets, so they run on a
// bounded pool; one job failing never stops the others. Results keep job order.
func (p *Pipeline) ReconcileJobs(ctx context.Context, in *GatherOutput) []JobResult {
	active := make(map[string]bool, len(in.ActiveTalentIDs))
	for _, id := range in.ActiveTalentIDs {
		active[id] = true
	}

	results := make([]JobResult, len(in.Jobs))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, job := range in.Jobs {
		i, job := i, job
		g.Go(func() error {
			results[i] = p.reconcileJob(ctx, job, in, active)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Pipeline) reconcileJob(ctx context.Context, job model.Job, in *GatherOutput, active map[string]bool) JobResult {
	res := JobResult{JobID: job.ID, JobTitle: job.Title}
	logger := p.logger.With("job_id", job.ID)

	if err := ctx.Err(); err != nil {
		res.Err = &model.JobError{JobID: job.ID, Err: err}
		res.Error = res.Err.Error()
		return res
	}

	diff, err := p.reconciler.Reconcile(ctx, reconcile.Input{
		Job:             job,
		Talents:         in.Talents,
		Settings:        in.Settings,
		ForceFullMode:   in.ForceFullMode,
		ActiveTalentIDs: active,
	})
	if err != nil {
		logger.Error("reconcile failed", "stage", "reconcile", "error", err)
		res.Err = err
		res.Error = err.Error()
		return res
	}

	exec := batch.NewExecutor(p.store, p.chunkSize, logger)
	if !p.dryRun {
		exec.OnCreated = func(ctx context.Context, created []model.Recommendation) {
			p.notify(ctx, job, created, logger)
		}
	}
	stats, err := exec.Apply(ctx, diff)
	res.Stats = stats
	if err != nil {
		logger.Error("apply failed", "stage", "apply", "error", err, "written", stats.Writes())
		res.Err = err
		res.Error = err.Error()
		return res
	}

	logger.Info("job reconciled",
		"title", job.Title,
		"created", stats.Created,
		"updated", stats.Updated,
		"deleted", stats.Deleted,
		"kept", stats.Kept,
		"protected", stats.Protected,
	)
	return res
}

func (p *Pipeline) notify(ctx context.Context, job model.Job, created []model.Recommendation, logger *slog.Logger) {
	if p.notifier == nil {
		return
	}
	at := p.now().UTC()
	events := make([]model.RecommendationEvent, len(created))
	for i, r := range created {
		events[i] = model.RecommendationEvent{
			RecommendationID: r.ID,
			JobID:            job.ID,
			JobTitle:         job.Title,
			TalentID:         r.TalentID,
			Score:            r.Score,
			CreatedAt:        at,
		}
	}
	if err := p.notifier.Notify(ctx, events); err != nil {
		logger.Warn("recommendation notification failed", "events", len(events), "error", err)
	}
}

// Finalize is stage 3: it sums successful job stats and records the run in
// the settings row. The marker is the time gather started, so records edited
// while the run was in flight are picked up by the next incremental run. It
// is written even when jobs failed; a failed write is fatal.
func (p *Pipeline) Finalize(ctx context.Context, in *GatherOutput, results []JobResult) (*RunResult, error) {
	threshold := in.Settings.Threshold
	res := &RunResult{
		Threshold:  threshold,
		ExecutedAt: p.now().UTC(),
		Jobs:       results,
	}
	for _, r := range results {
		if r.Err != nil || r.Error != "" {
			res.Summary.JobsFailed++
			continue
		}
		res.Summary.JobsProcessed++
		res.Summary.TotalCreated += r.Stats.Created
		res.Summary.TotalUpdated += r.Stats.Updated
		res.Summary.TotalDeleted += r.Stats.Deleted
		res.Summary.TotalKept += r.Stats.Kept
		res.Summary.TotalProtected += r.Stats.Protected
	}

	if err := p.settings.UpdateAt(ctx, threshold, in.StartedAt); err != nil {
		perr := &model.SettingsPersistError{Err: err}
		res.Error = perr.Error()
		return res, perr
	}
	res.Success = true
	return res, nil
}

// FailedJobs returns the errors of every failed job in results.
func FailedJobs(results []JobResult) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		} else if r.Error != "" {
			errs = append(errs, fmt.Errorf("job %s: %s", r.JobID, r.Error))
		}
	}
	return errors.Join(errs...)
}
