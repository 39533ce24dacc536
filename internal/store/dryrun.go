package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amishk599/talentmatch/internal/model"
)

var _ model.Backend = (*DryRunStore)(nil)

// DryRunStore is used in dry-run mode. Reads go to the wrapped backend; every
// write is logged and dropped, so a run reports what it would change without
// touching recommendations or the run marker.
type DryRunStore struct {
	model.Backend
	logger *slog.Logger
}

func NewDryRunStore(backend model.Backend, logger *slog.Logger) *DryRunStore {
	return &DryRunStore{Backend: backend, logger: logger}
}

func (s *DryRunStore) CreateRecommendations(_ context.Context, recs []model.Recommendation) ([]model.Recommendation, error) {
	created := make([]model.Recommendation, len(recs))
	for i, r := range recs {
		r.ID = uuid.NewString()
		created[i] = r
		s.logger.Debug("dry-run: would create recommendation", "job_id", r.JobID, "talent_id", r.TalentID, "score", r.Score)
	}
	return created, nil
}

func (s *DryRunStore) UpdateRecommendations(_ context.Context, recs []model.Recommendation) error {
	for _, r := range recs {
		s.logger.Debug("dry-run: would update recommendation", "id", r.ID, "job_id", r.JobID, "talent_id", r.TalentID, "score", r.Score)
	}
	return nil
}

func (s *DryRunStore) DeleteRecommendations(_ context.Context, ids []string) error {
	s.logger.Debug("dry-run: would delete recommendations", "ids", ids)
	return nil
}

func (s *DryRunStore) SaveRunMarker(_ context.Context, threshold int, at time.Time) error {
	s.logger.Debug("dry-run: would save run marker", "threshold", threshold, "at", at)
	return nil
}

func (s *DryRunStore) SaveThreshold(_ context.Context, threshold int) error {
	s.logger.Debug("dry-run: would save threshold", "threshold", threshold)
	return nil
}
