package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/talentmatch/internal/filter"
	"github.com/amishk599/talentmatch/internal/model"
)

var _ model.Backend = (*MemoryStore)(nil)

// MemoryStore keeps jobs, talents, recommendations and settings in memory.
// Used by tests and local experiments; nothing survives the process.
type MemoryStore struct {
	mu       sync.RWMutex
	filter   *filter.ActivityFilter
	jobs     map[string]model.Job
	talents  map[string]model.Talent
	recs     map[string]model.Recommendation // keyed by storage id
	settings *model.RunSettings
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		filter:  filter.DefaultActivityFilter(),
		jobs:    make(map[string]model.Job),
		talents: make(map[string]model.Talent),
		recs:    make(map[string]model.Recommendation),
	}
}

// PutJob inserts or replaces a job.
func (m *MemoryStore) PutJob(job model.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
}

// PutTalent inserts or replaces a talent, keyed by its auth user id.
func (m *MemoryStore) PutTalent(t model.Talent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.talents[t.ID] = t
}

// RemoveTalent deletes a talent.
func (m *MemoryStore) RemoveTalent(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.talents, id)
}

// PutRecommendation stores rec as-is, assigning an id if it has none. The
// protected flag is derived from the markers the same way the SQL stores do.
func (m *MemoryStore) PutRecommendation(rec model.Recommendation) model.Recommendation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.Protected = model.ProtectedFromMarkers(rec.AIExecuted, rec.StaffRecommended)
	m.recs[rec.ID] = rec
	return rec
}

// Recommendations returns every stored recommendation for jobID ordered by talent id.
func (m *MemoryStore) Recommendations(jobID string) []model.Recommendation {
	recs, _ := m.ListRecommendations(context.Background(), jobID)
	return recs
}

func (m *MemoryStore) ListActiveJobs(_ context.Context) ([]model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if m.filter.ActiveJob(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (m *MemoryStore) ListActiveTalents(_ context.Context) ([]model.Talent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Talent, 0, len(m.talents))
	for _, t := range m.talents {
		if m.filter.ActiveTalent(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (m *MemoryStore) ListRecommendations(_ context.Context, jobID string) ([]model.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Recommendation
	for _, r := range m.recs {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].TalentID < out[k].TalentID })
	return out, nil
}

func (m *MemoryStore) CreateRecommendations(_ context.Context, recs []model.Recommendation) ([]model.Recommendation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		for _, existing := range m.recs {
			if existing.JobID == r.JobID && existing.TalentID == r.TalentID {
				return nil, fmt.Errorf("recommendation (%s, %s) already exists", r.TalentID, r.JobID)
			}
		}
	}
	created := make([]model.Recommendation, len(recs))
	for i, r := range recs {
		r.ID = uuid.NewString()
		r.Protected = model.ProtectedFromMarkers(r.AIExecuted, r.StaffRecommended)
		m.recs[r.ID] = r
		created[i] = r
	}
	return created, nil
}

func (m *MemoryStore) UpdateRecommendations(_ context.Context, recs []model.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		existing, ok := m.recs[r.ID]
		if !ok {
			return fmt.Errorf("recommendation %s not found", r.ID)
		}
		existing.Score = r.Score
		m.recs[r.ID] = existing
	}
	return nil
}

func (m *MemoryStore) DeleteRecommendations(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.recs, id)
	}
	return nil
}

func (m *MemoryStore) LoadSettings(_ context.Context) (*model.RunSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return nil, nil
	}
	s := *m.settings
	return &s, nil
}

func (m *MemoryStore) SaveRunMarker(_ context.Context, threshold int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		m.settings = &model.RunSettings{Threshold: threshold}
	}
	th := threshold
	m.settings.LastBatchTime = &at
	m.settings.LastThreshold = &th
	return nil
}

func (m *MemoryStore) SaveThreshold(_ context.Context, threshold int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		m.settings = &model.RunSettings{}
	}
	m.settings.Threshold = threshold
	return nil
}
