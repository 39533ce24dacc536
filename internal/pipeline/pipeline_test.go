package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/talentmatch/internal/model"
	"github.com/amishk599/talentmatch/internal/settings"
	"github.com/amishk599/talentmatch/internal/store"
)

// --- Fakes ---

type failingStore struct {
	*store.MemoryStore
	listErrFor string
	jobsErr    error
	saveErr    error
}

func (f *failingStore) ListActiveJobs(ctx context.Context) ([]model.Job, error) {
	if f.jobsErr != nil {
		return nil, f.jobsErr
	}
	return f.MemoryStore.ListActiveJobs(ctx)
}

func (f *failingStore) ListRecommendations(ctx context.Context, jobID string) ([]model.Recommendation, error) {
	if jobID == f.listErrFor {
		return nil, errors.New("upstream 500")
	}
	return f.MemoryStore.ListRecommendations(ctx, jobID)
}

func (f *failingStore) SaveRunMarker(ctx context.Context, threshold int, at time.Time) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryStore.SaveRunMarker(ctx, threshold, at)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.RecommendationEvent
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, events []model.RecommendationEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
	return n.err
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var past = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func backendJob(id string) model.Job {
	return model.Job{
		ID:                id,
		Title:             "Backend Engineer " + id,
		Positions:         []string{"Backend Engineer"},
		Skills:            []string{"Go", "PostgreSQL"},
		UpdatedAt:         past,
		Listing:           "published",
		RecruitmentStatus: "open",
	}
}

// goTalent scores 4 against backendJob.
func goTalent(id string) model.Talent {
	return model.Talent{
		ID:         id,
		RecordID:   "rec-" + id,
		Positions:  []string{"Backend Engineer"},
		Skills:     "Go, PostgreSQL, Docker",
		Experience: "5 years of Go",
		UpdatedAt:  past,
	}
}

func newPipeline(t *testing.T, backend model.Backend, notifier model.Notifier) *Pipeline {
	t.Helper()
	s := settings.NewStore(backend, settings.DefaultThreshold, discardLogger())
	return New(backend, s, notifier, Config{ChunkSize: 100, Workers: 2}, discardLogger())
}

func mustRun(t *testing.T, p *Pipeline, opts Options) *RunResult {
	t.Helper()
	res, err := p.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success {
		t.Fatalf("Run reported failure: %s", res.Error)
	}
	return res
}

// --- Tests ---

func TestRun_CreatesThenDeletesWhenThresholdRaised(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.PutJob(backendJob("j1"))
	mem.PutTalent(goTalent("t1"))
	p := newPipeline(t, mem, nil)

	res := mustRun(t, p, Options{})
	if res.Summary.TotalCreated != 1 || res.Threshold != 3 || !res.FullMode {
		t.Fatalf("first run = %+v, want 1 created at threshold 3 in full mode", res.Summary)
	}
	recs := mem.Recommendations("j1")
	if len(recs) != 1 || recs[0].Score != 4 || recs[0].TalentID != "t1" {
		t.Fatalf("recommendations = %+v, want t1 with score 4", recs)
	}

	if err := mem.SaveThreshold(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	res = mustRun(t, p, Options{Full: true})
	if res.Summary.TotalDeleted != 1 {
		t.Errorf("second run deleted = %d, want 1", res.Summary.TotalDeleted)
	}
	if got := mem.Recommendations("j1"); len(got) != 0 {
		t.Errorf("recommendations after raise = %+v, want none", got)
	}
}

func TestRun_SecondRunWritesNothing(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.PutJob(backendJob("j1"))
	mem.PutTalent(goTalent("t1"))
	mem.PutTalent(goTalent("t2"))
	p := newPipeline(t, mem, nil)

	mustRun(t, p, Options{})
	res := mustRun(t, p, Options{})

	s := res.Summary
	if s.TotalCreated+s.TotalUpdated+s.TotalDeleted != 0 {
		t.Errorf("second run wrote %+v, want no writes", s)
	}
	if s.TotalKept != 2 {
		t.Errorf("kept = %d, want 2", s.TotalKept)
	}
	if res.FullMode {
		t.Error("second run should be incremental")
	}
}

func TestRun_WithdrawnTalentIsCleanedUp(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.PutJob(backendJob("j1"))
	mem.PutTalent(goTalent("t1"))
	p := newPipeline(t, mem, nil)
	mustRun(t, p, Options{})

	withdrawn := goTalent("t1")
	withdrawn.Status = "withdrawn"
	mem.PutTalent(withdrawn)

	res := mustRun(t, p, Options{})
	if res.Summary.TotalDeleted != 1 {
		t.Errorf("deleted = %d, want 1", res.Summary.TotalDeleted)
	}
	if got := mem.Recommendations("j1"); len(got) != 0 {
		t.Errorf("recommendations = %+v, want none", got)
	}
}

func TestRun_ProtectedRecordSurvives(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.PutJob(backendJob("j1"))
	mem.PutTalent(model.Talent{ID: "t1", Skills: "Cobol", UpdatedAt: past})
	mem.PutRecommendation(model.Recommendation{TalentID: "t1", JobID: "j1", Score: 0, StaffRecommended: "yes"})
	p := newPipeline(t, mem, nil)

	res := mustRun(t, p, Options{Full: true})
	if res.Summary.TotalProtected != 1 || res.Summary.TotalDeleted != 0 {
		t.Errorf("summary = %+v, want 1 protected and no deletes", res.Summary)
	}
	recs := mem.Recommendations("j1")
	if len(recs) != 1 || recs[0].Score != 0 {
		t.Errorf("recommendations = %+v, want the protected record untouched", recs)
	}
}

func TestRun_JobFailureDoesNotStopOthers(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.PutJob(backendJob("bad"))
	mem.PutJob(backendJob("good"))
	mem.PutTalent(goTalent("t1"))
	fs := &failingStore{MemoryStore: mem, listErrFor: "bad"}
	p := newPipeline(t, fs, nil)

	res := mustRun(t, p, Options{})
	if res.Summary.JobsProcessed != 1 || res.Summary.JobsFailed != 1 {
		t.Errorf("summary = %+v, want 1 processed and 1 failed", res.Summary)
	}
	if len(mem.Recommendations("good")) != 1 {
		t.Error("good job should have been reconciled")
	}

	var jobErr *model.JobError
	if err := FailedJobs(res.Jobs); !errors.As(err, &jobErr) || jobErr.JobID != "bad" {
		t.Errorf("FailedJobs = %v, want JobError for bad", err)
	}

	stored, _ := mem.LoadSettings(context.Background())
	if stored == nil || stored.LastBatchTime == nil {
		t.Error("run marker should be written even when a job fails")
	}
}

func TestRun_ResultsKeepJobOrder(t *testing.T) {
	mem := store.NewMemoryStore()
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		mem.PutJob(backendJob(id))
	}
	mem.PutTalent(goTalent("t1"))
	p := newPipeline(t, mem, nil)

	res := mustRun(t, p, Options{})
	if len(res.Jobs) != len(ids) {
		t.Fatalf("got %d job results, want %d", len(res.Jobs), len(ids))
	}
	for i, id := range ids {
		if res.Jobs[i].JobID != id {
			t.Errorf("Jobs[%d] = %s, want %s", i, res.Jobs[i].JobID, id)
		}
	}
}

func TestRun_GatherFailureSkipsFinalize(t *testing.T) {
	mem := store.NewMemoryStore()
	fs := &failingStore{MemoryStore: mem, jobsErr: errors.New("503")}
	p := newPipeline(t, fs, nil)

	res, err := p.Run(context.Background(), Options{})
	var upErr *model.UpstreamFetchError
	if !errors.As(err, &upErr) {
		t.Fatalf("error = %v, want UpstreamFetchError", err)
	}
	if res.Success || res.Error == "" {
		t.Errorf("result = %+v, want failure with error", res)
	}
	if stored, _ := mem.LoadSettings(context.Background()); stored != nil {
		t.Error("settings must not be written after a fetch failure")
	}
}

func TestRun_SettingsPersistFailureIsFatal(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.PutJob(backendJob("j1"))
	mem.PutTalent(goTalent("t1"))
	fs := &failingStore{MemoryStore: mem, saveErr: errors.New("read-only")}
	p := newPipeline(t, fs, nil)

	res, err := p.Run(context.Background(), Options{})
	var perr *model.SettingsPersistError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want SettingsPersistError", err)
	}
	if res.Success {
		t.Error("Success should be false")
	}
	if res.Summary.TotalCreated != 1 {
		t.Errorf("created = %d, want the job writes to be reported", res.Summary.TotalCreated)
	}
}

func TestRun_NotifiesCreatedRecommendations(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.PutJob(backendJob("j1"))
	mem.PutTalent(goTalent("t1"))
	n := &recordingNotifier{err: errors.New("webhook down")}
	p := newPipeline(t, mem, n)

	res := mustRun(t, p, Options{})
	if res.Summary.TotalCreated != 1 {
		t.Fatalf("created = %d, want 1", res.Summary.TotalCreated)
	}
	if len(n.events) != 1 {
		t.Fatalf("events = %d, want 1", len(n.events))
	}
	ev := n.events[0]
	if ev.JobID != "j1" || ev.TalentID != "t1" || ev.Score != 4 || ev.RecommendationID == "" {
		t.Errorf("event = %+v", ev)
	}
}

func TestDecideFullMode(t *testing.T) {
	last := past
	three, five := 3, 5
	tests := []struct {
		name      string
		settings  model.RunSettings
		requested bool
		want      bool
	}{
		{"requested", model.RunSettings{Threshold: 3, LastBatchTime: &last, LastThreshold: &three}, true, true},
		{"never run", model.RunSettings{Threshold: 3}, false, true},
		{"threshold lowered", model.RunSettings{Threshold: 3, LastBatchTime: &last, LastThreshold: &five}, false, true},
		{"threshold raised", model.RunSettings{Threshold: 5, LastBatchTime: &last, LastThreshold: &three}, false, false},
		{"unchanged", model.RunSettings{Threshold: 3, LastBatchTime: &last, LastThreshold: &three}, false, false},
		{"no last threshold", model.RunSettings{Threshold: 3, LastBatchTime: &last}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := DecideFullMode(tt.settings, tt.requested)
			if got != tt.want {
				t.Errorf("DecideFullMode = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGatherOutput_JSONFieldNames(t *testing.T) {
	out := GatherOutput{ForceFullMode: true, ActiveTalentIDs: []string{"t1"}}
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"jobs", "talents", "settings", "forceFullMode", "activeTalentIds", "startedAt"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing field %q in %s", key, data)
		}
	}
}

func TestRun_DryRunSendsNoNotifications(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.PutJob(backendJob("j1"))
	mem.PutTalent(goTalent("t1"))
	dry := store.NewDryRunStore(mem, discardLogger())
	n := &recordingNotifier{}

	s := settings.NewStore(dry, settings.DefaultThreshold, discardLogger())
	p := New(dry, s, n, Config{ChunkSize: 100, Workers: 1, DryRun: true}, discardLogger())

	res := mustRun(t, p, Options{})
	if res.Summary.TotalCreated != 1 {
		t.Errorf("created = %d, want the planned create reported", res.Summary.TotalCreated)
	}
	if got := mem.Recommendations("j1"); len(got) != 0 {
		t.Errorf("dry run stored %d recommendations", len(got))
	}
	if len(n.events) != 0 {
		t.Errorf("dry run sent %d notifications for unwritten records: %+v", len(n.events), n.events)
	}
}

func TestFinalize_MarkerIsGatherStart(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.PutJob(backendJob("j1"))
	mem.PutTalent(goTalent("t1"))
	p := newPipeline(t, mem, nil)

	gatherAt := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return gatherAt }
	ctx := context.Background()
	in, err := p.Gather(ctx, Options{})
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if !in.StartedAt.Equal(gatherAt) {
		t.Fatalf("StartedAt = %v, want %v", in.StartedAt, gatherAt)
	}

	p.now = func() time.Time { return gatherAt.Add(10 * time.Minute) }
	results := p.ReconcileJobs(ctx, in)
	if _, err := p.Finalize(ctx, in, results); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	stored, err := mem.LoadSettings(ctx)
	if err != nil || stored == nil || stored.LastBatchTime == nil {
		t.Fatalf("settings = %+v, %v", stored, err)
	}
	if !stored.LastBatchTime.Equal(gatherAt) {
		t.Errorf("LastBatchTime = %v, want gather start %v", stored.LastBatchTime, gatherAt)
	}

	// t2 was saved after the snapshot but before finalize.
	late := goTalent("t2")
	late.UpdatedAt = gatherAt.Add(5 * time.Minute)
	mem.PutTalent(late)

	p.now = func() time.Time { return gatherAt.Add(time.Hour) }
	res := mustRun(t, p, Options{})
	if res.FullMode {
		t.Fatal("second run should be incremental")
	}
	if res.Summary.TotalCreated != 1 {
		t.Errorf("created = %d, want the mid-run edit picked up", res.Summary.TotalCreated)
	}
}
