// Package runlock keeps two pipeline runs from overlapping on one host. The
// settings row has no concurrency control of its own, so every run holds an
// exclusive file lock while it reads and writes it.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/amishk599/talentmatch/internal/pipeline"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another run is in progress")

// Lock is an exclusive advisory lock on a file.
type Lock struct {
	fl *flock.Flock
}

// New returns a lock backed by path. The parent directory is created if needed.
func New(path string) (*Lock, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating lock directory: %w", err)
		}
	}
	return &Lock{fl: flock.New(path)}, nil
}

// Acquire takes the lock without blocking. It returns ErrLocked when the lock
// is held elsewhere, and a release func otherwise.
func (l *Lock) Acquire() (release func() error, err error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", l.fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", l.fl.Path(), ErrLocked)
	}
	return l.fl.Unlock, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Runner performs one pipeline run.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.RunResult, error)
}

// LockedRunner is a decorator that holds the lock for the whole run,
// retries included.
type LockedRunner struct {
	inner Runner
	lock  *Lock
}

// NewLockedRunner wraps inner so it only runs while holding lock.
func NewLockedRunner(inner Runner, lock *Lock) *LockedRunner {
	return &LockedRunner{inner: inner, lock: lock}
}

// Run returns ErrLocked without running when another run holds the lock.
func (r *LockedRunner) Run(ctx context.Context, opts pipeline.Options) (*pipeline.RunResult, error) {
	release, err := r.lock.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return r.inner.Run(ctx, opts)
}
