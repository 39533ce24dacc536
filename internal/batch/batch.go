// Package batch applies a reconciliation diff to the record store in
// bounded-size chunks.
package batch

import (
	"context"
	"log/slog"

	"github.com/amishk599/talentmatch/internal/model"
	"github.com/amishk599/talentmatch/internal/reconcile"
)

// DefaultChunkSize is the largest number of records sent in one store call.
const DefaultChunkSize = 100

// Writer is the write side of the record store.
type Writer interface {
	CreateRecommendations(ctx context.Context, recs []model.Recommendation) ([]model.Recommendation, error)
	UpdateRecommendations(ctx context.Context, recs []model.Recommendation) error
	DeleteRecommendations(ctx context.Context, ids []string) error
}

// Executor writes diffs as deletes, then updates, then creates. Deletes go
// first so a create never lands next to a stale row that is about to go.
type Executor struct {
	store     Writer
	chunkSize int
	logger    *slog.Logger

	// OnCreated, if set, receives every successfully created chunk.
	OnCreated func(ctx context.Context, created []model.Recommendation)
}

// NewExecutor returns an executor writing to store. A non-positive chunkSize
// falls back to DefaultChunkSize.
func NewExecutor(store Writer, chunkSize int, logger *slog.Logger) *Executor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Executor{store: store, chunkSize: chunkSize, logger: logger}
}

// ChunkSize returns the configured chunk size.
func (e *Executor) ChunkSize() int { return e.chunkSize }

// Apply writes the diff and returns the job's stats. The first failing chunk
// stops the job: remaining chunks and later operation kinds are not sent, and
// the stats count only what was written.
func (e *Executor) Apply(ctx context.Context, diff reconcile.Diff) (model.Stats, error) {
	stats := model.Stats{Kept: diff.Kept, Protected: diff.Protected}

	ids := make([]string, len(diff.Delete))
	for i, rec := range diff.Delete {
		ids[i] = rec.ID
	}
	for i, chunk := range Chunk(ids, e.chunkSize) {
		if err := e.store.DeleteRecommendations(ctx, chunk); err != nil {
			return stats, e.fail(diff.JobID, "delete", i, len(chunk), err)
		}
		stats.Deleted += len(chunk)
	}

	for i, chunk := range Chunk(diff.Update, e.chunkSize) {
		if err := e.store.UpdateRecommendations(ctx, chunk); err != nil {
			return stats, e.fail(diff.JobID, "update", i, len(chunk), err)
		}
		stats.Updated += len(chunk)
	}

	for i, chunk := range Chunk(diff.Create, e.chunkSize) {
		created, err := e.store.CreateRecommendations(ctx, chunk)
		if err != nil {
			return stats, e.fail(diff.JobID, "create", i, len(chunk), err)
		}
		stats.Created += len(chunk)
		if e.OnCreated != nil && len(created) > 0 {
			e.OnCreated(ctx, created)
		}
	}

	return stats, nil
}

func (e *Executor) fail(jobID, op string, index, size int, err error) error {
	if e.logger != nil {
		e.logger.Error("batch write failed",
			"job_id", jobID,
			"op", op,
			"chunk", index,
			"size", size,
			"error", err,
		)
	}
	return &model.JobError{JobID: jobID, Err: &model.ChunkError{Op: op, Index: index, Size: size, Err: err}}
}

// Chunk splits items into consecutive slices of at most size elements.
// It returns nil for an empty input.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}
