package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/amishk599/talentmatch/internal/model"
)

// Limiter is a set of token buckets keyed by name. Every key gets its own
// bucket with the same rate and burst.
type Limiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
	b  int
}

// NewLimiter creates a limiter allowing reqPerSec requests per key with the
// given burst. A reqPerSec <= 0 disables pacing.
func NewLimiter(reqPerSec float64, burst int) *Limiter {
	r := rate.Limit(reqPerSec)
	if reqPerSec <= 0 {
		r = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{m: make(map[string]*rate.Limiter), r: r, b: burst}
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.m[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(l.r, l.b)
	l.m[key] = lim
	return lim
}

// Wait blocks until key may make another request. Returns an error if the
// context is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if err := l.limiterFor(key).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait for %s: %w", key, err)
	}
	return nil
}

const (
	keyRead  = "read"
	keyWrite = "write"
)

// RateLimitedStore is a decorator that paces every call to the wrapped
// backend. Reads and writes draw from separate buckets so a long write phase
// cannot starve the listing calls of other jobs.
type RateLimitedStore struct {
	inner   model.Backend
	limiter *Limiter
}

var _ model.Backend = (*RateLimitedStore)(nil)

// NewRateLimitedStore wraps a backend with request pacing.
func NewRateLimitedStore(inner model.Backend, limiter *Limiter) *RateLimitedStore {
	return &RateLimitedStore{inner: inner, limiter: limiter}
}

func (s *RateLimitedStore) ListActiveJobs(ctx context.Context) ([]model.Job, error) {
	if err := s.limiter.Wait(ctx, keyRead); err != nil {
		return nil, err
	}
	return s.inner.ListActiveJobs(ctx)
}

func (s *RateLimitedStore) ListActiveTalents(ctx context.Context) ([]model.Talent, error) {
	if err := s.limiter.Wait(ctx, keyRead); err != nil {
		return nil, err
	}
	return s.inner.ListActiveTalents(ctx)
}

func (s *RateLimitedStore) ListRecommendations(ctx context.Context, jobID string) ([]model.Recommendation, error) {
	if err := s.limiter.Wait(ctx, keyRead); err != nil {
		return nil, err
	}
	return s.inner.ListRecommendations(ctx, jobID)
}

func (s *RateLimitedStore) CreateRecommendations(ctx context.Context, recs []model.Recommendation) ([]model.Recommendation, error) {
	if err := s.limiter.Wait(ctx, keyWrite); err != nil {
		return nil, err
	}
	return s.inner.CreateRecommendations(ctx, recs)
}

func (s *RateLimitedStore) UpdateRecommendations(ctx context.Context, recs []model.Recommendation) error {
	if err := s.limiter.Wait(ctx, keyWrite); err != nil {
		return err
	}
	return s.inner.UpdateRecommendations(ctx, recs)
}

func (s *RateLimitedStore) DeleteRecommendations(ctx context.Context, ids []string) error {
	if err := s.limiter.Wait(ctx, keyWrite); err != nil {
		return err
	}
	return s.inner.DeleteRecommendations(ctx, ids)
}

func (s *RateLimitedStore) LoadSettings(ctx context.Context) (*model.RunSettings, error) {
	if err := s.limiter.Wait(ctx, keyRead); err != nil {
		return nil, err
	}
	return s.inner.LoadSettings(ctx)
}

func (s *RateLimitedStore) SaveRunMarker(ctx context.Context, threshold int, at time.Time) error {
	if err := s.limiter.Wait(ctx, keyWrite); err != nil {
		return err
	}
	return s.inner.SaveRunMarker(ctx, threshold, at)
}

func (s *RateLimitedStore) SaveThreshold(ctx context.Context, threshold int) error {
	if err := s.limiter.Wait(ctx, keyWrite); err != nil {
		return err
	}
	return s.inner.SaveThreshold(ctx, threshold)
}
