// Package settings reads and writes the run settings singleton: the current
// score threshold and the bookkeeping of the last completed run.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/talentmatch/internal/model"
)

// DefaultThreshold is used when no settings row exists.
const DefaultThreshold = 3

// Store wraps a SettingsBackend. The row is shared across runs without any
// locking; callers must make sure only one run writes at a time.
type Store struct {
	backend          model.SettingsBackend
	defaultThreshold int
	now              func() time.Time
	logger           *slog.Logger
}

// NewStore returns a settings store. defaultThreshold is used when the row is
// missing or unreadable.
func NewStore(backend model.SettingsBackend, defaultThreshold int, logger *slog.Logger) *Store {
	return &Store{
		backend:          backend,
		defaultThreshold: defaultThreshold,
		now:              time.Now,
		logger:           logger,
	}
}

// Defaults returns the settings used before the first run.
func (s *Store) Defaults() model.RunSettings {
	return model.RunSettings{Threshold: s.defaultThreshold}
}

// Get returns the stored settings, or defaults when there is no row or the
// backend fails. Defaults carry no last run time, which forces a full run.
func (s *Store) Get(ctx context.Context) model.RunSettings {
	stored, err := s.backend.LoadSettings(ctx)
	if err != nil {
		s.logger.Warn("settings unavailable, using defaults",
			"default_threshold", s.defaultThreshold,
			"error", err,
		)
		return s.Defaults()
	}
	if stored == nil {
		s.logger.Info("no settings stored yet, using defaults", "default_threshold", s.defaultThreshold)
		return s.Defaults()
	}
	return *stored
}

// Update records a completed run: last run time = now, last threshold =
// threshold. A missing row is created with threshold as its current value.
func (s *Store) Update(ctx context.Context, threshold int) error {
	return s.UpdateAt(ctx, threshold, time.Time{})
}

// UpdateAt is Update with an explicit run marker. A zero at means now.
func (s *Store) UpdateAt(ctx context.Context, threshold int, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	if err := s.backend.SaveRunMarker(ctx, threshold, at); err != nil {
		return fmt.Errorf("saving run marker: %w", err)
	}
	s.logger.Debug("run marker saved", "threshold", threshold, "at", at)
	return nil
}

// SetThreshold changes the current threshold used by the next run.
func (s *Store) SetThreshold(ctx context.Context, threshold int) error {
	if threshold < 0 {
		return fmt.Errorf("threshold must be non-negative, got %d", threshold)
	}
	if err := s.backend.SaveThreshold(ctx, threshold); err != nil {
		return fmt.Errorf("saving threshold: %w", err)
	}
	return nil
}
