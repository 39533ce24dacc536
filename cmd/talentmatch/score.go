package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/talentmatch/internal/fetcher"
	"github.com/amishk599/talentmatch/internal/filter"
	"github.com/amishk599/talentmatch/internal/model"
	"github.com/amishk599/talentmatch/internal/report"
	"github.com/amishk599/talentmatch/internal/scorer"
)

var (
	scoreJobID    string
	scoreTalentID string
	scoreOutput   string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Explain the score of one talent for one job",
	Long:  "Scores one active talent against one active job and prints the per-keyword breakdown. Writes nothing.",
	RunE:  runScore,
}

func init() {
	scoreCmd.Flags().StringVar(&scoreJobID, "job", "", "job id")
	scoreCmd.Flags().StringVar(&scoreTalentID, "talent", "", "talent id (auth user id or record id)")
	scoreCmd.Flags().StringVarP(&scoreOutput, "output", "o", "table", "output format: table or json")
	_ = scoreCmd.MarkFlagRequired("job")
	_ = scoreCmd.MarkFlagRequired("talent")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug, jsonLogs)

	if scoreOutput != "table" && scoreOutput != "json" {
		return fmt.Errorf("unknown output format %q", scoreOutput)
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeBackend()

	job, talent, err := findPair(ctx, backend, newActivityFilter(cfg), logger, scoreJobID, scoreTalentID)
	if err != nil {
		return err
	}

	threshold := newSettingsStore(cfg, backend, logger).Get(ctx).Threshold
	res := scorer.New().Score(talent, job)

	if scoreOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			JobID     string        `json:"jobId"`
			TalentID  string        `json:"talentId"`
			Threshold int           `json:"threshold"`
			Result    scorer.Result `json:"result"`
		}{job.ID, talent.ID, threshold, res})
	}

	fmt.Print(report.RenderScore(job, talent, res, threshold))
	return nil
}

// findPair looks the job and talent up in the same candidate view a run
// uses: filtered, with one row per auth user.
func findPair(ctx context.Context, source fetcher.Source, f *filter.ActivityFilter, logger *slog.Logger, jobID, talentID string) (model.Job, model.Talent, error) {
	candidates := fetcher.NewCandidateFetcher(source, f, logger)

	jobs, err := candidates.FetchJobs(ctx)
	if err != nil {
		return model.Job{}, model.Talent{}, err
	}
	job, ok := findJob(jobs, jobID)
	if !ok {
		return model.Job{}, model.Talent{}, fmt.Errorf("job %q not found among active jobs", jobID)
	}

	talents, err := candidates.FetchTalents(ctx)
	if err != nil {
		return model.Job{}, model.Talent{}, err
	}
	talent, ok := findTalent(talents, talentID)
	if !ok {
		return model.Job{}, model.Talent{}, fmt.Errorf("talent %q not found among active talents", talentID)
	}
	return job, talent, nil
}

func findJob(jobs []model.Job, id string) (model.Job, bool) {
	for _, j := range jobs {
		if j.ID == id {
			return j, true
		}
	}
	return model.Job{}, false
}

func findTalent(talents []model.Talent, id string) (model.Talent, bool) {
	for _, t := range talents {
		if t.ID == id || t.RecordID == id {
			return t, true
		}
	}
	return model.Talent{}, false
}
