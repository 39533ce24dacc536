package model

import (
	"context"
	"strings"
	"time"
)

// Job is a snapshot of a job posting taken once per run.
type Job struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Positions []string  `json:"positions"`
	Skills    []string  `json:"skills"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Listing and RecruitmentStatus are only consulted by the activity filter.
	Listing           string `json:"listing,omitempty"`
	RecruitmentStatus string `json:"recruitmentStatus,omitempty"`
}

// Talent is a snapshot of a candidate taken once per run.
type Talent struct {
	ID         string    `json:"id"`       // auth user id, the recommendation key
	RecordID   string    `json:"recordId"` // storage id in the record store
	Name       string    `json:"name"`
	Positions  []string  `json:"positions"`
	Skills     string    `json:"skills"`
	Experience string    `json:"experience"`
	Status     string    `json:"status,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Recommendation links one talent to one job with a match score.
type Recommendation struct {
	ID       string `json:"id,omitempty"` // storage id; empty until created
	TalentID string `json:"talentId"`
	JobID    string `json:"jobId"`
	Score    int    `json:"score"`

	// Raw markers as stored by the enrichment process.
	AIExecuted       string `json:"aiExecuted,omitempty"`
	StaffRecommended string `json:"staffRecommended,omitempty"`

	// Protected is derived from the markers when the record is loaded.
	Protected bool `json:"protected"`
}

// ProtectedFromMarkers reports whether either curation marker is present.
func ProtectedFromMarkers(aiExecuted, staffRecommended string) bool {
	return strings.TrimSpace(aiExecuted) != "" || strings.TrimSpace(staffRecommended) != ""
}

// RunSettings is the singleton carrying the threshold and last-run bookkeeping.
type RunSettings struct {
	Threshold     int        `json:"threshold"`
	LastBatchTime *time.Time `json:"lastBatchTime"` // nil means never run
	LastThreshold *int       `json:"lastThreshold"`
}

// Stats counts the outcome of reconciling one job.
type Stats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Kept      int `json:"kept"`
	Protected int `json:"protected"`
}

// Add returns the element-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Created:   s.Created + o.Created,
		Updated:   s.Updated + o.Updated,
		Deleted:   s.Deleted + o.Deleted,
		Kept:      s.Kept + o.Kept,
		Protected: s.Protected + o.Protected,
	}
}

// Writes returns the number of store mutations the stats represent.
func (s Stats) Writes() int {
	return s.Created + s.Updated + s.Deleted
}

// RecommendationEvent announces a newly created recommendation to downstream
// notification services.
type RecommendationEvent struct {
	RecommendationID string    `json:"recommendationId"`
	JobID            string    `json:"jobId"`
	JobTitle         string    `json:"jobTitle"`
	TalentID         string    `json:"talentId"`
	Score            int       `json:"score"`
	CreatedAt        time.Time `json:"createdAt"`
}

// RecordStore is the external record store the pipeline reads from and writes to.
type RecordStore interface {
	ListActiveJobs(ctx context.Context) ([]Job, error)
	ListActiveTalents(ctx context.Context) ([]Talent, error)
	ListRecommendations(ctx context.Context, jobID string) ([]Recommendation, error)
	CreateRecommendations(ctx context.Context, recs []Recommendation) ([]Recommendation, error)
	UpdateRecommendations(ctx context.Context, recs []Recommendation) error
	DeleteRecommendations(ctx context.Context, ids []string) error
}

// SettingsBackend persists the RunSettings singleton.
// LoadSettings returns (nil, nil) when no row exists yet.
type SettingsBackend interface {
	LoadSettings(ctx context.Context) (*RunSettings, error)
	SaveRunMarker(ctx context.Context, threshold int, at time.Time) error
	SaveThreshold(ctx context.Context, threshold int) error
}

// Backend is a record store that also holds the settings singleton.
type Backend interface {
	RecordStore
	SettingsBackend
}

// Notifier delivers created-recommendation events.
type Notifier interface {
	Notify(ctx context.Context, events []RecommendationEvent) error
}
