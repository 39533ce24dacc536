package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/talentmatch/internal/model"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load jobs, talents and recommendations from a YAML file",
	Long:  "Upserts the records in a YAML file into the configured SQL store. Useful for local runs and demos.",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML file with jobs, talents and recommendations")
	_ = seedCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(seedCmd)
}

// seeder is implemented by the SQL stores.
type seeder interface {
	UpsertJob(ctx context.Context, j model.Job) error
	UpsertTalent(ctx context.Context, t model.Talent) error
	UpsertRecommendation(ctx context.Context, r model.Recommendation) error
}

type seedData struct {
	Jobs            []seedJob            `yaml:"jobs"`
	Talents         []seedTalent         `yaml:"talents"`
	Recommendations []seedRecommendation `yaml:"recommendations"`
}

type seedJob struct {
	ID                string   `yaml:"id"`
	Title             string   `yaml:"title"`
	Positions         []string `yaml:"positions"`
	Skills            []string `yaml:"skills"`
	Listing           string   `yaml:"listing"`
	RecruitmentStatus string   `yaml:"recruitment_status"`
	UpdatedAt         string   `yaml:"updated_at"`
}

type seedTalent struct {
	ID         string   `yaml:"id"`
	RecordID   string   `yaml:"record_id"`
	Name       string   `yaml:"name"`
	Positions  []string `yaml:"positions"`
	Skills     string   `yaml:"skills"`
	Experience string   `yaml:"experience"`
	Status     string   `yaml:"status"`
	UpdatedAt  string   `yaml:"updated_at"`
}

type seedRecommendation struct {
	ID               string `yaml:"id"`
	TalentID         string `yaml:"talent_id"`
	JobID            string `yaml:"job_id"`
	Score            int    `yaml:"score"`
	AIExecuted       string `yaml:"ai_executed"`
	StaffRecommended string `yaml:"staff_recommended"`
}

// parseSeed decodes a seed file. Blank timestamps default to now.
func parseSeed(data []byte, now time.Time) ([]model.Job, []model.Talent, []model.Recommendation, error) {
	var raw seedData
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, nil, fmt.Errorf("parse seed file: %w", err)
	}

	jobs := make([]model.Job, 0, len(raw.Jobs))
	for i, j := range raw.Jobs {
		if j.ID == "" {
			return nil, nil, nil, fmt.Errorf("jobs[%d]: id is required", i)
		}
		updated, err := seedTime(j.UpdatedAt, now)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("jobs[%d].updated_at: %w", i, err)
		}
		jobs = append(jobs, model.Job{
			ID:                j.ID,
			Title:             j.Title,
			Positions:         j.Positions,
			Skills:            j.Skills,
			Listing:           j.Listing,
			RecruitmentStatus: j.RecruitmentStatus,
			UpdatedAt:         updated,
		})
	}

	talents := make([]model.Talent, 0, len(raw.Talents))
	for i, t := range raw.Talents {
		if t.ID == "" {
			return nil, nil, nil, fmt.Errorf("talents[%d]: id is required", i)
		}
		updated, err := seedTime(t.UpdatedAt, now)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("talents[%d].updated_at: %w", i, err)
		}
		talents = append(talents, model.Talent{
			ID:         t.ID,
			RecordID:   t.RecordID,
			Name:       t.Name,
			Positions:  t.Positions,
			Skills:     t.Skills,
			Experience: t.Experience,
			Status:     t.Status,
			UpdatedAt:  updated,
		})
	}

	recs := make([]model.Recommendation, 0, len(raw.Recommendations))
	for i, r := range raw.Recommendations {
		if r.TalentID == "" || r.JobID == "" {
			return nil, nil, nil, fmt.Errorf("recommendations[%d]: talent_id and job_id are required", i)
		}
		recs = append(recs, model.Recommendation{
			ID:               r.ID,
			TalentID:         r.TalentID,
			JobID:            r.JobID,
			Score:            r.Score,
			AIExecuted:       r.AIExecuted,
			StaffRecommended: r.StaffRecommended,
		})
	}

	return jobs, talents, recs, nil
}

func seedTime(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func runSeed(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, jsonLogs)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(seedFile)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	jobs, talents, recs, err := parseSeed(data, time.Now().UTC())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeBackend()

	s, ok := backend.(seeder)
	if !ok {
		return fmt.Errorf("store driver %q does not support seeding", cfg.Store.Driver)
	}

	for _, j := range jobs {
		if err := s.UpsertJob(ctx, j); err != nil {
			return fmt.Errorf("seed job %s: %w", j.ID, err)
		}
	}
	for _, t := range talents {
		if err := s.UpsertTalent(ctx, t); err != nil {
			return fmt.Errorf("seed talent %s: %w", t.ID, err)
		}
	}
	for _, r := range recs {
		if err := s.UpsertRecommendation(ctx, r); err != nil {
			return fmt.Errorf("seed recommendation %s/%s: %w", r.JobID, r.TalentID, err)
		}
	}

	logger.Info("seed complete", "jobs", len(jobs), "talents", len(talents), "recommendations", len(recs))
	return nil
}
