package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/amishk599/talentmatch/internal/model"
	"github.com/amishk599/talentmatch/internal/reconcile"
)

// --- Fakes ---

type call struct {
	op   string
	size int
}

// recordingWriter logs every call in order and can fail a given op on its
// n-th chunk (1-based).
type recordingWriter struct {
	calls     []call
	created   [][]model.Recommendation
	updated   [][]model.Recommendation
	deleted   [][]string
	failOp    string
	failOnNth int
	seen      map[string]int
}

func (w *recordingWriter) maybeFail(op string) error {
	if w.seen == nil {
		w.seen = map[string]int{}
	}
	w.seen[op]++
	if op == w.failOp && w.seen[op] == w.failOnNth {
		return errors.New("store rejected batch")
	}
	return nil
}

func (w *recordingWriter) CreateRecommendations(_ context.Context, recs []model.Recommendation) ([]model.Recommendation, error) {
	w.calls = append(w.calls, call{"create", len(recs)})
	if err := w.maybeFail("create"); err != nil {
		return nil, err
	}
	out := make([]model.Recommendation, len(recs))
	for i, r := range recs {
		r.ID = "new-" + r.TalentID
		out[i] = r
	}
	w.created = append(w.created, out)
	return out, nil
}

func (w *recordingWriter) UpdateRecommendations(_ context.Context, recs []model.Recommendation) error {
	w.calls = append(w.calls, call{"update", len(recs)})
	if err := w.maybeFail("update"); err != nil {
		return err
	}
	w.updated = append(w.updated, recs)
	return nil
}

func (w *recordingWriter) DeleteRecommendations(_ context.Context, ids []string) error {
	w.calls = append(w.calls, call{"delete", len(ids)})
	if err := w.maybeFail("delete"); err != nil {
		return err
	}
	w.deleted = append(w.deleted, ids)
	return nil
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recs(prefix string, n int) []model.Recommendation {
	out := make([]model.Recommendation, n)
	for i := range out {
		id := fmt.Sprintf("%s-%03d", prefix, i)
		out[i] = model.Recommendation{ID: id, TalentID: id, JobID: "J", Score: 5}
	}
	return out
}

// --- Tests ---

func TestChunk_Sizes(t *testing.T) {
	tests := []struct {
		n, size    int
		wantChunks int
	}{
		{0, 100, 0},
		{1, 100, 1},
		{100, 100, 1},
		{101, 100, 2},
		{250, 100, 3},
		{7, 3, 3},
	}
	for _, tt := range tests {
		items := make([]int, tt.n)
		for i := range items {
			items[i] = i
		}
		chunks := Chunk(items, tt.size)
		if len(chunks) != tt.wantChunks {
			t.Errorf("Chunk(n=%d, size=%d) = %d chunks, want %d", tt.n, tt.size, len(chunks), tt.wantChunks)
			continue
		}

		seen := make(map[int]bool, tt.n)
		for _, c := range chunks {
			if len(c) == 0 || len(c) > tt.size {
				t.Errorf("chunk size %d outside (0, %d]", len(c), tt.size)
			}
			for _, v := range c {
				if seen[v] {
					t.Errorf("item %d appears twice", v)
				}
				seen[v] = true
			}
		}
		if len(seen) != tt.n {
			t.Errorf("union has %d items, want %d", len(seen), tt.n)
		}
	}
}

func TestChunk_AppendDoesNotClobberNeighbour(t *testing.T) {
	chunks := Chunk([]int{1, 2, 3, 4}, 2)
	_ = append(chunks[0], 99)
	if chunks[1][0] != 3 {
		t.Errorf("appending to first chunk modified second: %v", chunks[1])
	}
}

func TestApply_CreatesInCeilNOverCCalls(t *testing.T) {
	w := &recordingWriter{}
	e := NewExecutor(w, 100, discardLogger())

	stats, err := e.Apply(context.Background(), reconcile.Diff{JobID: "J", Create: recs("c", 250)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.created) != 3 {
		t.Fatalf("create calls = %d, want 3", len(w.created))
	}
	sizes := []int{len(w.created[0]), len(w.created[1]), len(w.created[2])}
	if sizes[0] != 100 || sizes[1] != 100 || sizes[2] != 50 {
		t.Errorf("chunk sizes = %v, want [100 100 50]", sizes)
	}
	if stats.Created != 250 {
		t.Errorf("Created = %d, want 250", stats.Created)
	}
}

func TestApply_OrderDeletesUpdatesCreates(t *testing.T) {
	w := &recordingWriter{}
	e := NewExecutor(w, 2, discardLogger())

	diff := reconcile.Diff{
		JobID:     "J",
		Create:    recs("c", 3),
		Update:    recs("u", 2),
		Delete:    recs("d", 3),
		Kept:      4,
		Protected: 2,
	}
	stats, err := e.Apply(context.Background(), diff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []call{
		{"delete", 2}, {"delete", 1},
		{"update", 2},
		{"create", 2}, {"create", 1},
	}
	if len(w.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", w.calls, want)
	}
	for i := range want {
		if w.calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, w.calls[i], want[i])
		}
	}

	wantStats := model.Stats{Created: 3, Updated: 2, Deleted: 3, Kept: 4, Protected: 2}
	if stats != wantStats {
		t.Errorf("stats = %+v, want %+v", stats, wantStats)
	}
	if w.deleted[0][0] != "d-000" {
		t.Errorf("delete ids = %v, want storage ids", w.deleted[0])
	}
}

func TestApply_FailedChunkStopsJob(t *testing.T) {
	w := &recordingWriter{failOp: "delete", failOnNth: 2}
	e := NewExecutor(w, 2, discardLogger())

	diff := reconcile.Diff{JobID: "J", Create: recs("c", 2), Update: recs("u", 1), Delete: recs("d", 6)}
	stats, err := e.Apply(context.Background(), diff)
	if err == nil {
		t.Fatal("expected error")
	}

	var jobErr *model.JobError
	if !errors.As(err, &jobErr) || jobErr.JobID != "J" {
		t.Errorf("error = %v, want JobError for J", err)
	}
	var chunkErr *model.ChunkError
	if !errors.As(err, &chunkErr) || chunkErr.Op != "delete" || chunkErr.Index != 1 {
		t.Errorf("error = %v, want delete chunk 1", err)
	}

	// First delete chunk went through; the failing one stopped everything.
	if len(w.calls) != 2 {
		t.Errorf("calls = %v, want exactly two delete calls", w.calls)
	}
	if stats.Deleted != 2 || stats.Updated != 0 || stats.Created != 0 {
		t.Errorf("stats = %+v, want only the first delete chunk counted", stats)
	}
}

func TestApply_OnCreatedReceivesStoredRecords(t *testing.T) {
	w := &recordingWriter{}
	e := NewExecutor(w, 2, discardLogger())

	var got []model.Recommendation
	e.OnCreated = func(_ context.Context, created []model.Recommendation) {
		got = append(got, created...)
	}

	diff := reconcile.Diff{JobID: "J", Create: recs("c", 3), Update: recs("u", 2)}
	if _, err := e.Apply(context.Background(), diff); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("OnCreated received %d records, want 3", len(got))
	}
	for _, r := range got {
		if r.ID != "new-"+r.TalentID {
			t.Errorf("record %+v missing store-assigned id", r)
		}
	}
}

func TestApply_EmptyDiffMakesNoCalls(t *testing.T) {
	w := &recordingWriter{}
	e := NewExecutor(w, 0, discardLogger())

	stats, err := e.Apply(context.Background(), reconcile.Diff{JobID: "J", Kept: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.calls) != 0 {
		t.Errorf("calls = %v, want none", w.calls)
	}
	if stats.Kept != 3 {
		t.Errorf("Kept = %d, want 3", stats.Kept)
	}
	if e.ChunkSize() != DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want default %d", e.ChunkSize(), DefaultChunkSize)
	}
}
