package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/amishk599/talentmatch/internal/filter"
	"github.com/amishk599/talentmatch/internal/model"
)

var _ model.Backend = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL DEFAULT '',
	positions          TEXT NOT NULL DEFAULT '[]',
	skills             TEXT NOT NULL DEFAULT '[]',
	listing            TEXT NOT NULL DEFAULT '',
	recruitment_status TEXT NOT NULL DEFAULT '',
	updated_at         TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS talents (
	id           TEXT PRIMARY KEY,
	auth_user_id TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	positions    TEXT NOT NULL DEFAULT '[]',
	skills       TEXT NOT NULL DEFAULT '',
	experience   TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT '',
	updated_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS recommendations (
	id                TEXT PRIMARY KEY,
	talent_id         TEXT NOT NULL,
	job_id            TEXT NOT NULL,
	score             INTEGER NOT NULL,
	ai_executed       TEXT NOT NULL DEFAULT '',
	staff_recommended TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	UNIQUE (talent_id, job_id)
);
CREATE INDEX IF NOT EXISTS idx_recommendations_job ON recommendations (job_id);
CREATE TABLE IF NOT EXISTS run_settings (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	threshold       INTEGER NOT NULL,
	last_batch_time TEXT,
	last_threshold  INTEGER
);`

// SQLiteStore keeps jobs, talents, recommendations and the run settings in a
// single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	filter *filter.ActivityFilter
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the tables exist. A nil filter uses the default activity values.
func NewSQLiteStore(dbPath string, f *filter.ActivityFilter) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	if f == nil {
		f = filter.DefaultActivityFilter()
	}
	return &SQLiteStore{db: db, filter: f}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListActiveJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, positions, skills, listing, recruitment_status, updated_at
		 FROM jobs
		 WHERE lower(trim(listing)) = ? AND lower(trim(recruitment_status)) = ?
		 ORDER BY id`, s.filter.Listing(), s.filter.OpenState())
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var (
			j                 model.Job
			positions, skills string
			updatedAt         string
		)
		if err := rows.Scan(&j.ID, &j.Title, &positions, &skills, &j.Listing, &j.RecruitmentStatus, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		if j.Positions, err = decodeList(positions); err != nil {
			return nil, fmt.Errorf("job %s positions: %w", j.ID, err)
		}
		if j.Skills, err = decodeList(skills); err != nil {
			return nil, fmt.Errorf("job %s skills: %w", j.ID, err)
		}
		if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("job %s updated_at: %w", j.ID, err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) ListActiveTalents(ctx context.Context) ([]model.Talent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, auth_user_id, name, positions, skills, experience, status, updated_at
		 FROM talents
		 WHERE lower(trim(status)) <> ?
		 ORDER BY auth_user_id, id`, s.filter.Withdrawn())
	if err != nil {
		return nil, fmt.Errorf("listing talents: %w", err)
	}
	defer rows.Close()

	var talents []model.Talent
	for rows.Next() {
		var (
			t                    model.Talent
			positions, updatedAt string
		)
		if err := rows.Scan(&t.RecordID, &t.ID, &t.Name, &positions, &t.Skills, &t.Experience, &t.Status, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning talent: %w", err)
		}
		if t.Positions, err = decodeList(positions); err != nil {
			return nil, fmt.Errorf("talent %s positions: %w", t.RecordID, err)
		}
		if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("talent %s updated_at: %w", t.RecordID, err)
		}
		talents = append(talents, t)
	}
	return talents, rows.Err()
}

func (s *SQLiteStore) ListRecommendations(ctx context.Context, jobID string) ([]model.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, talent_id, job_id, score, ai_executed, staff_recommended
		 FROM recommendations WHERE job_id = ? ORDER BY talent_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing recommendations for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var recs []model.Recommendation
	for rows.Next() {
		var r model.Recommendation
		if err := rows.Scan(&r.ID, &r.TalentID, &r.JobID, &r.Score, &r.AIExecuted, &r.StaffRecommended); err != nil {
			return nil, fmt.Errorf("scanning recommendation: %w", err)
		}
		r.Protected = model.ProtectedFromMarkers(r.AIExecuted, r.StaffRecommended)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// CreateRecommendations inserts recs in one transaction. Either every record
// is created or none is.
func (s *SQLiteStore) CreateRecommendations(ctx context.Context, recs []model.Recommendation) ([]model.Recommendation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	created := make([]model.Recommendation, len(recs))
	for i, r := range recs {
		r.ID = uuid.NewString()
		_, err := tx.ExecContext(ctx,
			`INSERT INTO recommendations (id, talent_id, job_id, score, ai_executed, staff_recommended, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.TalentID, r.JobID, r.Score, r.AIExecuted, r.StaffRecommended, now)
		if err != nil {
			return nil, fmt.Errorf("inserting recommendation (%s, %s): %w", r.TalentID, r.JobID, err)
		}
		r.Protected = model.ProtectedFromMarkers(r.AIExecuted, r.StaffRecommended)
		created[i] = r
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing recommendations: %w", err)
	}
	return created, nil
}

// UpdateRecommendations rewrites the score of each record in one transaction.
func (s *SQLiteStore) UpdateRecommendations(ctx context.Context, recs []model.Recommendation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range recs {
		res, err := tx.ExecContext(ctx, `UPDATE recommendations SET score = ? WHERE id = ?`, r.Score, r.ID)
		if err != nil {
			return fmt.Errorf("updating recommendation %s: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("recommendation %s not found", r.ID)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteRecommendations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `DELETE FROM recommendations WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting %d recommendations: %w", len(ids), err)
	}
	return nil
}

func (s *SQLiteStore) LoadSettings(ctx context.Context) (*model.RunSettings, error) {
	var (
		rs            model.RunSettings
		lastBatch     sql.NullString
		lastThreshold sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT threshold, last_batch_time, last_threshold FROM run_settings WHERE id = 1`,
	).Scan(&rs.Threshold, &lastBatch, &lastThreshold)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading run settings: %w", err)
	}
	if lastBatch.Valid {
		t, err := parseTime(lastBatch.String)
		if err != nil {
			return nil, fmt.Errorf("run settings last_batch_time: %w", err)
		}
		rs.LastBatchTime = &t
	}
	if lastThreshold.Valid {
		v := int(lastThreshold.Int64)
		rs.LastThreshold = &v
	}
	return &rs, nil
}

func (s *SQLiteStore) SaveRunMarker(ctx context.Context, threshold int, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_settings (id, threshold, last_batch_time, last_threshold) VALUES (1, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET last_batch_time = excluded.last_batch_time, last_threshold = excluded.last_threshold`,
		threshold, formatTime(at), threshold)
	if err != nil {
		return fmt.Errorf("saving run marker: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveThreshold(ctx context.Context, threshold int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_settings (id, threshold) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET threshold = excluded.threshold`,
		threshold)
	if err != nil {
		return fmt.Errorf("saving threshold: %w", err)
	}
	return nil
}

// UpsertJob inserts or replaces a job.
func (s *SQLiteStore) UpsertJob(ctx context.Context, j model.Job) error {
	positions, err := encodeList(j.Positions)
	if err != nil {
		return err
	}
	skills, err := encodeList(j.Skills)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, title, positions, skills, listing, recruitment_status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     title = excluded.title,
		     positions = excluded.positions,
		     skills = excluded.skills,
		     listing = excluded.listing,
		     recruitment_status = excluded.recruitment_status,
		     updated_at = excluded.updated_at`,
		j.ID, j.Title, positions, skills, j.Listing, j.RecruitmentStatus, formatTime(j.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting job %s: %w", j.ID, err)
	}
	return nil
}

// UpsertTalent inserts or replaces a talent keyed by its record id. A blank
// record id defaults to the auth user id.
func (s *SQLiteStore) UpsertTalent(ctx context.Context, t model.Talent) error {
	if t.RecordID == "" {
		t.RecordID = t.ID
	}
	positions, err := encodeList(t.Positions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO talents (id, auth_user_id, name, positions, skills, experience, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     auth_user_id = excluded.auth_user_id,
		     name = excluded.name,
		     positions = excluded.positions,
		     skills = excluded.skills,
		     experience = excluded.experience,
		     status = excluded.status,
		     updated_at = excluded.updated_at`,
		t.RecordID, t.ID, t.Name, positions, t.Skills, t.Experience, t.Status, formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting talent %s: %w", t.RecordID, err)
	}
	return nil
}

// UpsertRecommendation stores a recommendation with its curation markers,
// replacing any record for the same (talent, job) pair.
func (s *SQLiteStore) UpsertRecommendation(ctx context.Context, r model.Recommendation) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recommendations (id, talent_id, job_id, score, ai_executed, staff_recommended, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (talent_id, job_id) DO UPDATE SET
		     score = excluded.score,
		     ai_executed = excluded.ai_executed,
		     staff_recommended = excluded.staff_recommended`,
		r.ID, r.TalentID, r.JobID, r.Score, r.AIExecuted, r.StaffRecommended, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("upserting recommendation (%s, %s): %w", r.TalentID, r.JobID, err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encoding list: %w", err)
	}
	return string(b), nil
}

func decodeList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}
