package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amishk599/talentmatch/internal/model"
)

func TestEventValues(t *testing.T) {
	v := eventValues(sampleEvent("j1", "t1", 7))

	want := map[string]string{
		"recommendation_id": "rec-t1",
		"job_id":            "j1",
		"job_title":         "Backend Engineer",
		"talent_id":         "t1",
		"score":             "7",
		"created_at":        "2026-01-15T10:00:00Z",
	}
	for k, w := range want {
		if v[k] != w {
			t.Errorf("%s = %v, want %q", k, v[k], w)
		}
	}
}

func TestRedisNotifier_EmptyEventsSkipsRedis(t *testing.T) {
	n := NewRedisNotifier(&redis.Options{Addr: "127.0.0.1:1"}, "recommendations", 0, discardLogger())
	defer n.Close()

	if err := n.Notify(context.Background(), nil); err != nil {
		t.Errorf("Notify(nil) = %v, want nil", err)
	}
}

func TestRedisNotifier_UnreachableServer(t *testing.T) {
	n := NewRedisNotifier(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	}, "recommendations", 1000, discardLogger())
	defer n.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := n.Notify(ctx, []model.RecommendationEvent{sampleEvent("j1", "t1", 4)}); err == nil {
		t.Fatal("expected error for unreachable redis")
	}
	if err := n.Ping(ctx); err == nil {
		t.Fatal("expected ping error for unreachable redis")
	}
}
