package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amishk599/talentmatch/internal/model"
)

// Ensure RedisNotifier implements model.Notifier.
var _ model.Notifier = (*RedisNotifier)(nil)

// RedisNotifier appends every event to a Redis stream for downstream
// consumers (mailers, dashboards).
type RedisNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *slog.Logger
}

// NewRedisNotifier connects lazily; use Ping to verify the address. A maxLen
// > 0 trims the stream to roughly that many entries.
func NewRedisNotifier(opts *redis.Options, stream string, maxLen int64, logger *slog.Logger) *RedisNotifier {
	return &RedisNotifier{
		client: redis.NewClient(opts),
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// Ping checks the connection.
func (n *RedisNotifier) Ping(ctx context.Context) error {
	return n.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// Notify appends all events in one pipelined round trip.
func (n *RedisNotifier) Notify(ctx context.Context, events []model.RecommendationEvent) error {
	if len(events) == 0 {
		return nil
	}

	pipe := n.client.Pipeline()
	for _, e := range events {
		args := &redis.XAddArgs{
			Stream: n.stream,
			Values: eventValues(e),
		}
		if n.maxLen > 0 {
			args.MaxLen = n.maxLen
			args.Approx = true
		}
		pipe.XAdd(ctx, args)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd %d events to %s: %w", len(events), n.stream, err)
	}
	n.logger.Debug("recommendation events published", "stream", n.stream, "events", len(events))
	return nil
}

func eventValues(e model.RecommendationEvent) map[string]any {
	return map[string]any{
		"recommendation_id": e.RecommendationID,
		"job_id":            e.JobID,
		"job_title":         e.JobTitle,
		"talent_id":         e.TalentID,
		"score":             strconv.Itoa(e.Score),
		"created_at":        e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
