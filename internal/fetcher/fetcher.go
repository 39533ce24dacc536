// Package fetcher loads the active jobs and talents a run works on.
package fetcher

import (
	"context"
	"log/slog"
	"sort"

	"github.com/amishk599/talentmatch/internal/filter"
	"github.com/amishk599/talentmatch/internal/model"
)

// Source is the read side of the record store the fetcher needs.
type Source interface {
	ListActiveJobs(ctx context.Context) ([]model.Job, error)
	ListActiveTalents(ctx context.Context) ([]model.Talent, error)
}

// CandidateFetcher reads jobs and talents from the store and re-applies the
// activity filter, so a backend that returns unfiltered rows cannot leak
// closed jobs or withdrawn talents into a run.
type CandidateFetcher struct {
	source Source
	filter *filter.ActivityFilter
	logger *slog.Logger
}

// NewCandidateFetcher creates a fetcher. A nil filter uses the default values.
func NewCandidateFetcher(source Source, f *filter.ActivityFilter, logger *slog.Logger) *CandidateFetcher {
	if f == nil {
		f = filter.DefaultActivityFilter()
	}
	return &CandidateFetcher{source: source, filter: f, logger: logger}
}

// FetchJobs returns every published job with open recruitment.
func (c *CandidateFetcher) FetchJobs(ctx context.Context) ([]model.Job, error) {
	jobs, err := c.source.ListActiveJobs(ctx)
	if err != nil {
		return nil, &model.UpstreamFetchError{Stage: "jobs", Err: err}
	}

	active := make([]model.Job, 0, len(jobs))
	for _, j := range jobs {
		if c.filter.ActiveJob(j) {
			active = append(active, j)
		}
	}
	if dropped := len(jobs) - len(active); dropped > 0 {
		c.logger.Warn("store returned inactive jobs", "dropped", dropped)
	}
	return active, nil
}

// FetchTalents returns every talent not marked withdrawn. When the store holds
// two rows for one auth user, the most recently updated row wins.
func (c *CandidateFetcher) FetchTalents(ctx context.Context) ([]model.Talent, error) {
	talents, err := c.source.ListActiveTalents(ctx)
	if err != nil {
		return nil, &model.UpstreamFetchError{Stage: "talents", Err: err}
	}

	index := make(map[string]int, len(talents))
	active := make([]model.Talent, 0, len(talents))
	dropped, dups := 0, 0
	for _, t := range talents {
		if t.ID == "" || !c.filter.ActiveTalent(t) {
			dropped++
			continue
		}
		if i, ok := index[t.ID]; ok {
			dups++
			if t.UpdatedAt.After(active[i].UpdatedAt) {
				active[i] = t
			}
			continue
		}
		index[t.ID] = len(active)
		active = append(active, t)
	}
	if dropped > 0 || dups > 0 {
		c.logger.Warn("store returned unusable talents", "dropped", dropped, "duplicates", dups)
	}
	return active, nil
}

// ActiveIDs returns the sorted ids of talents.
func ActiveIDs(talents []model.Talent) []string {
	ids := make([]string, 0, len(talents))
	for _, t := range talents {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	return ids
}
