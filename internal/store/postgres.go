package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amishk599/talentmatch/internal/filter"
	"github.com/amishk599/talentmatch/internal/model"
)

var _ model.Backend = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL DEFAULT '',
	positions          TEXT[] NOT NULL DEFAULT '{}',
	skills             TEXT[] NOT NULL DEFAULT '{}',
	listing            TEXT NOT NULL DEFAULT '',
	recruitment_status TEXT NOT NULL DEFAULT '',
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS talents (
	id           TEXT PRIMARY KEY,
	auth_user_id TEXT NOT NULL,
	name         TEXT NOT NULL DEFAULT '',
	positions    TEXT[] NOT NULL DEFAULT '{}',
	skills       TEXT NOT NULL DEFAULT '',
	experience   TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS recommendations (
	id                TEXT PRIMARY KEY,
	talent_id         TEXT NOT NULL,
	job_id            TEXT NOT NULL,
	score             INTEGER NOT NULL,
	ai_executed       TEXT NOT NULL DEFAULT '',
	staff_recommended TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (talent_id, job_id)
);
CREATE INDEX IF NOT EXISTS idx_recommendations_job ON recommendations (job_id);
CREATE TABLE IF NOT EXISTS run_settings (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	threshold       INTEGER NOT NULL,
	last_batch_time TIMESTAMPTZ,
	last_threshold  INTEGER
);`

// PostgresStore is the shared-database backend. Several deployments can
// point at the same database; the run lock only guards one host.
type PostgresStore struct {
	pool   *pgxpool.Pool
	filter *filter.ActivityFilter
}

// NewPostgresStore connects to databaseURL, verifies the connection and
// ensures the tables exist.
func NewPostgresStore(ctx context.Context, databaseURL string, f *filter.ActivityFilter) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if f == nil {
		f = filter.DefaultActivityFilter()
	}
	return &PostgresStore{pool: pool, filter: f}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) ListActiveJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, positions, skills, listing, recruitment_status, updated_at
		 FROM jobs
		 WHERE lower(trim(listing)) = $1 AND lower(trim(recruitment_status)) = $2
		 ORDER BY id`, s.filter.Listing(), s.filter.OpenState())
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.ID, &j.Title, &j.Positions, &j.Skills, &j.Listing, &j.RecruitmentStatus, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) ListActiveTalents(ctx context.Context) ([]model.Talent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, auth_user_id, name, positions, skills, experience, status, updated_at
		 FROM talents
		 WHERE lower(trim(status)) <> $1
		 ORDER BY auth_user_id, id`, s.filter.Withdrawn())
	if err != nil {
		return nil, fmt.Errorf("failed to list talents: %w", err)
	}
	defer rows.Close()

	var talents []model.Talent
	for rows.Next() {
		var t model.Talent
		if err := rows.Scan(&t.RecordID, &t.ID, &t.Name, &t.Positions, &t.Skills, &t.Experience, &t.Status, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan talent: %w", err)
		}
		talents = append(talents, t)
	}
	return talents, rows.Err()
}

func (s *PostgresStore) ListRecommendations(ctx context.Context, jobID string) ([]model.Recommendation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, talent_id, job_id, score, ai_executed, staff_recommended
		 FROM recommendations WHERE job_id = $1 ORDER BY talent_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommendations for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var recs []model.Recommendation
	for rows.Next() {
		var r model.Recommendation
		if err := rows.Scan(&r.ID, &r.TalentID, &r.JobID, &r.Score, &r.AIExecuted, &r.StaffRecommended); err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		r.Protected = model.ProtectedFromMarkers(r.AIExecuted, r.StaffRecommended)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// CreateRecommendations inserts recs in one transaction using a pipelined batch.
func (s *PostgresStore) CreateRecommendations(ctx context.Context, recs []model.Recommendation) ([]model.Recommendation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created := make([]model.Recommendation, len(recs))
	batch := &pgx.Batch{}
	for i, r := range recs {
		r.ID = uuid.NewString()
		r.Protected = model.ProtectedFromMarkers(r.AIExecuted, r.StaffRecommended)
		created[i] = r
		batch.Queue(
			`INSERT INTO recommendations (id, talent_id, job_id, score, ai_executed, staff_recommended)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			r.ID, r.TalentID, r.JobID, r.Score, r.AIExecuted, r.StaffRecommended,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("failed to insert recommendations: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit recommendations: %w", err)
	}
	return created, nil
}

// UpdateRecommendations rewrites the score of each record in one transaction.
func (s *PostgresStore) UpdateRecommendations(ctx context.Context, recs []model.Recommendation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, r := range recs {
		tag, err := tx.Exec(ctx, `UPDATE recommendations SET score = $1 WHERE id = $2`, r.Score, r.ID)
		if err != nil {
			return fmt.Errorf("failed to update recommendation %s: %w", r.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("recommendation %s not found", r.ID)
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) DeleteRecommendations(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM recommendations WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to delete %d recommendations: %w", len(ids), err)
	}
	return nil
}

func (s *PostgresStore) LoadSettings(ctx context.Context) (*model.RunSettings, error) {
	var (
		rs            model.RunSettings
		lastThreshold *int32
	)
	err := s.pool.QueryRow(ctx,
		`SELECT threshold, last_batch_time, last_threshold FROM run_settings WHERE id = 1`,
	).Scan(&rs.Threshold, &rs.LastBatchTime, &lastThreshold)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load run settings: %w", err)
	}
	if lastThreshold != nil {
		v := int(*lastThreshold)
		rs.LastThreshold = &v
	}
	return &rs, nil
}

func (s *PostgresStore) SaveRunMarker(ctx context.Context, threshold int, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_settings (id, threshold, last_batch_time, last_threshold) VALUES (1, $1, $2, $1)
		 ON CONFLICT (id) DO UPDATE SET last_batch_time = $2, last_threshold = $1`,
		threshold, at)
	if err != nil {
		return fmt.Errorf("failed to save run marker: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveThreshold(ctx context.Context, threshold int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_settings (id, threshold) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET threshold = $1`,
		threshold)
	if err != nil {
		return fmt.Errorf("failed to save threshold: %w", err)
	}
	return nil
}

// UpsertJob inserts or replaces a job.
func (s *PostgresStore) UpsertJob(ctx context.Context, j model.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, title, positions, skills, listing, recruitment_status, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		     title = $2, positions = $3, skills = $4,
		     listing = $5, recruitment_status = $6, updated_at = $7`,
		j.ID, j.Title, nonNil(j.Positions), nonNil(j.Skills), j.Listing, j.RecruitmentStatus, j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert job %s: %w", j.ID, err)
	}
	return nil
}

// UpsertTalent inserts or replaces a talent keyed by its record id. A blank
// record id defaults to the auth user id.
func (s *PostgresStore) UpsertTalent(ctx context.Context, t model.Talent) error {
	if t.RecordID == "" {
		t.RecordID = t.ID
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO talents (id, auth_user_id, name, positions, skills, experience, status, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		     auth_user_id = $2, name = $3, positions = $4, skills = $5,
		     experience = $6, status = $7, updated_at = $8`,
		t.RecordID, t.ID, t.Name, nonNil(t.Positions), t.Skills, t.Experience, t.Status, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert talent %s: %w", t.RecordID, err)
	}
	return nil
}

// UpsertRecommendation stores a recommendation with its curation markers,
// replacing any record for the same (talent, job) pair.
func (s *PostgresStore) UpsertRecommendation(ctx context.Context, r model.Recommendation) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO recommendations (id, talent_id, job_id, score, ai_executed, staff_recommended)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (talent_id, job_id) DO UPDATE SET
		     score = $4, ai_executed = $5, staff_recommended = $6`,
		r.ID, r.TalentID, r.JobID, r.Score, r.AIExecuted, r.StaffRecommended)
	if err != nil {
		return fmt.Errorf("failed to upsert recommendation (%s, %s): %w", r.TalentID, r.JobID, err)
	}
	return nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
