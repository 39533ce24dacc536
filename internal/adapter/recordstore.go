package adapter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amishk599/talentmatch/internal/filter"
	"github.com/amishk599/talentmatch/internal/model"
)

var _ model.Backend = (*RecordAPIStore)(nil)

// Apps maps each collection to its app id in the record API.
type Apps struct {
	Jobs            string
	Talents         string
	Recommendations string
	Settings        string
}

// Field names used in each app.
const (
	fieldTitle             = "title"
	fieldPositions         = "positions"
	fieldSkills            = "skills"
	fieldListing           = "listing"
	fieldRecruitmentStatus = "recruitment_status"
	fieldUpdatedAt         = "updated_at"

	fieldAuthUserID = "auth_user_id"
	fieldName       = "name"
	fieldExperience = "experience"
	fieldStatus     = "status"

	fieldTalentID         = "talent_id"
	fieldJobID            = "job_id"
	fieldScore            = "score"
	fieldAIExecuted       = "ai_executed"
	fieldStaffRecommended = "staff_recommended"

	fieldThreshold     = "threshold"
	fieldLastBatchTime = "last_batch_time"
	fieldLastThreshold = "last_threshold"
)

// RecordAPIStore implements the record store and the settings backend on top
// of the record API.
type RecordAPIStore struct {
	client *Client
	apps   Apps
	filter *filter.ActivityFilter
}

// NewRecordAPIStore creates a store. A nil filter uses the default activity values.
func NewRecordAPIStore(client *Client, apps Apps, f *filter.ActivityFilter) *RecordAPIStore {
	if f == nil {
		f = filter.DefaultActivityFilter()
	}
	return &RecordAPIStore{client: client, apps: apps, filter: f}
}

func (s *RecordAPIStore) ListActiveJobs(ctx context.Context) ([]model.Job, error) {
	query := fmt.Sprintf(`%s in (%q) and %s in (%q)`,
		fieldListing, s.filter.Listing(), fieldRecruitmentStatus, s.filter.OpenState())
	records, err := s.client.List(ctx, s.apps.Jobs, query)
	if err != nil {
		return nil, err
	}

	jobs := make([]model.Job, 0, len(records))
	for _, r := range records {
		j := model.Job{
			ID:                r.id(),
			Title:             r.String(fieldTitle),
			Positions:         r.Strings(fieldPositions),
			Skills:            r.Strings(fieldSkills),
			Listing:           r.String(fieldListing),
			RecruitmentStatus: r.String(fieldRecruitmentStatus),
		}
		if j.UpdatedAt, _, err = r.Time(fieldUpdatedAt); err != nil {
			return nil, fmt.Errorf("job %s: %w", j.ID, err)
		}
		if s.filter.ActiveJob(j) {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

func (s *RecordAPIStore) ListActiveTalents(ctx context.Context) ([]model.Talent, error) {
	query := fmt.Sprintf(`%s not in (%q)`, fieldStatus, s.filter.Withdrawn())
	records, err := s.client.List(ctx, s.apps.Talents, query)
	if err != nil {
		return nil, err
	}

	talents := make([]model.Talent, 0, len(records))
	for _, r := range records {
		t := model.Talent{
			ID:         r.String(fieldAuthUserID),
			RecordID:   r.id(),
			Name:       r.String(fieldName),
			Positions:  r.Strings(fieldPositions),
			Skills:     r.String(fieldSkills),
			Experience: r.String(fieldExperience),
			Status:     r.String(fieldStatus),
		}
		if t.UpdatedAt, _, err = r.Time(fieldUpdatedAt); err != nil {
			return nil, fmt.Errorf("talent %s: %w", t.RecordID, err)
		}
		if s.filter.ActiveTalent(t) {
			talents = append(talents, t)
		}
	}
	return talents, nil
}

func (s *RecordAPIStore) ListRecommendations(ctx context.Context, jobID string) ([]model.Recommendation, error) {
	records, err := s.client.List(ctx, s.apps.Recommendations, fmt.Sprintf(`%s = %q`, fieldJobID, jobID))
	if err != nil {
		return nil, err
	}

	recs := make([]model.Recommendation, 0, len(records))
	for _, r := range records {
		rec := model.Recommendation{
			ID:               r.id(),
			TalentID:         r.String(fieldTalentID),
			JobID:            r.String(fieldJobID),
			AIExecuted:       r.String(fieldAIExecuted),
			StaffRecommended: r.String(fieldStaffRecommended),
		}
		if rec.JobID != jobID {
			continue
		}
		// A blank or garbled score reads as 0 so the next comparison rewrites it.
		rec.Score, _, _ = r.Int(fieldScore)
		rec.Protected = model.ProtectedFromMarkers(rec.AIExecuted, rec.StaffRecommended)
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *RecordAPIStore) CreateRecommendations(ctx context.Context, recs []model.Recommendation) ([]model.Recommendation, error) {
	records := make([]Record, len(recs))
	for i, r := range recs {
		records[i] = Record{
			fieldTalentID: value(r.TalentID),
			fieldJobID:    value(r.JobID),
			fieldScore:    value(strconv.Itoa(r.Score)),
		}
	}
	ids, err := s.client.Create(ctx, s.apps.Recommendations, records)
	if err != nil {
		return nil, err
	}

	created := make([]model.Recommendation, len(recs))
	for i, r := range recs {
		r.ID = ids[i]
		created[i] = r
	}
	return created, nil
}

func (s *RecordAPIStore) UpdateRecommendations(ctx context.Context, recs []model.Recommendation) error {
	updates := make([]RecordUpdate, len(recs))
	for i, r := range recs {
		updates[i] = RecordUpdate{ID: r.ID, Record: Record{fieldScore: value(strconv.Itoa(r.Score))}}
	}
	return s.client.Update(ctx, s.apps.Recommendations, updates)
}

func (s *RecordAPIStore) DeleteRecommendations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.client.Delete(ctx, s.apps.Recommendations, ids)
}

// LoadSettings reads the first record of the settings app.
func (s *RecordAPIStore) LoadSettings(ctx context.Context) (*model.RunSettings, error) {
	r, err := s.settingsRecord(ctx)
	if err != nil || r == nil {
		return nil, err
	}

	var rs model.RunSettings
	if rs.Threshold, _, err = r.Int(fieldThreshold); err != nil {
		return nil, err
	}
	last, ok, err := r.Time(fieldLastBatchTime)
	if err != nil {
		return nil, err
	}
	if ok {
		rs.LastBatchTime = &last
	}
	lastThreshold, ok, err := r.Int(fieldLastThreshold)
	if err != nil {
		return nil, err
	}
	if ok {
		rs.LastThreshold = &lastThreshold
	}
	return &rs, nil
}

func (s *RecordAPIStore) SaveRunMarker(ctx context.Context, threshold int, at time.Time) error {
	fields := Record{
		fieldLastBatchTime: value(at.UTC().Format(time.RFC3339)),
		fieldLastThreshold: value(strconv.Itoa(threshold)),
	}
	return s.saveSettings(ctx, fields, threshold)
}

func (s *RecordAPIStore) SaveThreshold(ctx context.Context, threshold int) error {
	return s.saveSettings(ctx, Record{fieldThreshold: value(strconv.Itoa(threshold))}, threshold)
}

// saveSettings updates the settings record, creating it with threshold as
// the current value when the app is still empty.
func (s *RecordAPIStore) saveSettings(ctx context.Context, fields Record, threshold int) error {
	existing, err := s.settingsRecord(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return s.client.Update(ctx, s.apps.Settings, []RecordUpdate{{ID: existing.id(), Record: fields}})
	}
	if _, ok := fields[fieldThreshold]; !ok {
		fields[fieldThreshold] = value(strconv.Itoa(threshold))
	}
	_, err = s.client.Create(ctx, s.apps.Settings, []Record{fields})
	return err
}

func (s *RecordAPIStore) settingsRecord(ctx context.Context) (Record, error) {
	records, err := s.client.List(ctx, s.apps.Settings, "")
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}
