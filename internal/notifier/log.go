package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/talentmatch/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes new recommendations to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each event via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs each event. Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(_ context.Context, events []model.RecommendationEvent) error {
	for _, e := range events {
		n.logger.Info("new recommendation",
			"job_id", e.JobID,
			"title", e.JobTitle,
			"talent_id", e.TalentID,
			"score", e.Score,
			"recommendation_id", e.RecommendationID,
		)
	}
	return nil
}
