// Package reconcile computes the minimal set of recommendation writes that
// brings one job's stored recommendations in line with current scores.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/amishk599/talentmatch/internal/model"
	"github.com/amishk599/talentmatch/internal/scorer"
)

// RecommendationLister loads the stored recommendations of one job.
type RecommendationLister interface {
	ListRecommendations(ctx context.Context, jobID string) ([]model.Recommendation, error)
}

// Input is everything the reconciler needs for one job.
type Input struct {
	Job             model.Job
	Talents         []model.Talent
	Settings        model.RunSettings
	ForceFullMode   bool
	ActiveTalentIDs map[string]bool
}

// Diff is the categorized change set for one job.
type Diff struct {
	JobID     string
	Create    []model.Recommendation
	Update    []model.Recommendation
	Delete    []model.Recommendation
	Kept      int
	Protected int
	Scored    int // pairs scored this run
	Reused    int // pairs whose stored score was reused
}

// Empty reports whether applying the diff would write nothing.
func (d Diff) Empty() bool {
	return len(d.Create) == 0 && len(d.Update) == 0 && len(d.Delete) == 0
}

// Reconciler diffs freshly computed scores against stored recommendations.
type Reconciler struct {
	store  RecommendationLister
	scorer *scorer.Scorer
	logger *slog.Logger
}

// NewReconciler creates a reconciler reading existing records from store.
func NewReconciler(store RecommendationLister, sc *scorer.Scorer, logger *slog.Logger) *Reconciler {
	if sc == nil {
		sc = scorer.New()
	}
	return &Reconciler{store: store, scorer: sc, logger: logger}
}

// Reconcile returns the diff for in.Job. It performs no writes.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) (Diff, error) {
	diff := Diff{JobID: in.Job.ID}

	stored, err := r.store.ListRecommendations(ctx, in.Job.ID)
	if err != nil {
		return diff, &model.JobError{JobID: in.Job.ID, Err: fmt.Errorf("list recommendations: %w", err)}
	}

	existing := make(map[string]model.Recommendation, len(stored))
	for _, rec := range stored {
		prev, dup := existing[rec.TalentID]
		if !dup {
			existing[rec.TalentID] = rec
			continue
		}
		// Two rows for one pair: the protected one wins, the extra row is
		// dropped unless it is itself protected.
		keep, extra := prev, rec
		if extra.Protected && !keep.Protected {
			keep, extra = extra, keep
		}
		existing[rec.TalentID] = keep
		if extra.Protected && in.ActiveTalentIDs[extra.TalentID] {
			diff.Protected++
		} else {
			diff.Delete = append(diff.Delete, extra)
		}
	}

	threshold := in.Settings.Threshold
	full := in.ForceFullMode || thresholdLowered(in.Settings)

	wanted := make(map[string]int, len(in.Talents))
	for _, t := range in.Talents {
		if !in.ActiveTalentIDs[t.ID] {
			continue
		}
		if full || changedSince(t.UpdatedAt, in.Settings.LastBatchTime) || changedSince(in.Job.UpdatedAt, in.Settings.LastBatchTime) {
			score := r.scorer.Score(t, in.Job).Value
			diff.Scored++
			if score >= threshold {
				wanted[t.ID] = score
			}
			continue
		}
		if rec, ok := existing[t.ID]; ok && rec.Score >= threshold {
			wanted[t.ID] = rec.Score
			diff.Reused++
		}
	}

	talentIDs := make([]string, 0, len(existing))
	for id := range existing {
		talentIDs = append(talentIDs, id)
	}
	sort.Strings(talentIDs)

	for _, id := range talentIDs {
		rec := existing[id]
		score, isWanted := wanted[id]
		switch {
		case !in.ActiveTalentIDs[id]:
			diff.Delete = append(diff.Delete, rec)
		case rec.Protected:
			diff.Protected++
		case !isWanted:
			diff.Delete = append(diff.Delete, rec)
		case rec.Score != score:
			rec.Score = score
			diff.Update = append(diff.Update, rec)
		default:
			diff.Kept++
		}
	}

	created := make(map[string]bool)
	for _, t := range in.Talents {
		score, ok := wanted[t.ID]
		if !ok || created[t.ID] {
			continue
		}
		if _, exists := existing[t.ID]; exists {
			continue
		}
		created[t.ID] = true
		diff.Create = append(diff.Create, model.Recommendation{
			TalentID: t.ID,
			JobID:    in.Job.ID,
			Score:    score,
		})
	}

	if r.logger != nil {
		r.logger.Debug("reconciled job",
			"job_id", in.Job.ID,
			"full", full,
			"scored", diff.Scored,
			"reused", diff.Reused,
			"create", len(diff.Create),
			"update", len(diff.Update),
			"delete", len(diff.Delete),
			"kept", diff.Kept,
			"protected", diff.Protected,
		)
	}
	return diff, nil
}

// changedSince reports whether ts is strictly after the last run. A missing
// last run counts as changed.
func changedSince(ts time.Time, last *time.Time) bool {
	if last == nil {
		return true
	}
	return ts.After(*last)
}

// thresholdLowered catches a lowered threshold even if the caller did not
// switch to full mode; unchanged pairs below the old threshold were never
// stored and would otherwise be missed.
func thresholdLowered(s model.RunSettings) bool {
	return s.LastThreshold != nil && s.Threshold < *s.LastThreshold
}
