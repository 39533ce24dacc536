package runlock

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/amishk599/talentmatch/internal/pipeline"
)

func TestAcquire_SecondHolderIsRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "run.lock")

	first, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	second, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	release, err := first.Acquire()
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	if _, err := second.Acquire(); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire error = %v, want ErrLocked", err)
	}

	if err := release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	release, err = second.Acquire()
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	release()
}

func TestPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	l, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	if l.Path() != path {
		t.Errorf("Path = %q, want %q", l.Path(), path)
	}
}

type countingRunner struct {
	calls int
	lock  *Lock
	inner error // error seen when acquiring lock from inside the run
}

func (c *countingRunner) Run(_ context.Context, _ pipeline.Options) (*pipeline.RunResult, error) {
	c.calls++
	_, c.inner = c.lock.Acquire()
	return &pipeline.RunResult{Success: true}, nil
}

func TestLockedRunner_HoldsLockDuringRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	outer, _ := New(path)
	other, _ := New(path)
	inner := &countingRunner{lock: other}

	res, err := NewLockedRunner(inner, outer).Run(context.Background(), pipeline.Options{})
	if err != nil || !res.Success {
		t.Fatalf("Run = %+v, %v", res, err)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
	if !errors.Is(inner.inner, ErrLocked) {
		t.Errorf("lock inside run = %v, want ErrLocked", inner.inner)
	}

	// Released afterwards.
	release, err := other.Acquire()
	if err != nil {
		t.Fatalf("Acquire after run: %v", err)
	}
	release()
}

func TestLockedRunner_SkipsWhenLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	holder, _ := New(path)
	mine, _ := New(path)
	release, err := holder.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	inner := &countingRunner{lock: mine}
	if _, err := NewLockedRunner(inner, mine).Run(context.Background(), pipeline.Options{}); !errors.Is(err, ErrLocked) {
		t.Fatalf("error = %v, want ErrLocked", err)
	}
	if inner.calls != 0 {
		t.Errorf("calls = %d, want 0", inner.calls)
	}
}
