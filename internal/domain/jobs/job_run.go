package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"

	TriggerRPC     = "rpc"
	TriggerStorage = "storage"
)

// RecipeJobRun is one ledger row per video-to-recipe run.
type RecipeJobRun struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobKey          string         `gorm:"column:job_key;not null;index" json:"job_key"`
	SourcePath      string         `gorm:"column:source_path;not null;index" json:"source_path"`
	Trigger         string         `gorm:"column:trigger_source;not null" json:"trigger"`
	Status          string         `gorm:"column:status;not null;index" json:"status"`
	Stage           string         `gorm:"column:stage;not null" json:"stage"`
	Error           string         `gorm:"column:error" json:"error,omitempty"`
	ParseOutcome    string         `gorm:"column:parse_outcome" json:"parse_outcome,omitempty"`
	FrameCount      int            `gorm:"column:frame_count;not null;default:0" json:"frame_count"`
	FramesSkipped   int            `gorm:"column:frames_skipped;not null;default:0" json:"frames_skipped"`
	TranscriptChars int            `gorm:"column:transcript_chars;not null;default:0" json:"transcript_chars"`
	Result          datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	StartedAt       *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt      *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (RecipeJobRun) TableName() string { return "recipe_job_run" }

func (r *RecipeJobRun) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = StatusQueued
	}
	if r.Stage == "" {
		r.Stage = StatusQueued
	}
	return nil
}

// Terminal reports whether the run has finished either way.
func (r *RecipeJobRun) Terminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}

// RunStats are the counters recorded when a run succeeds.
type RunStats struct {
	ParseOutcome    string
	FrameCount      int
	FramesSkipped   int
	TranscriptChars int
}

// JobEvent is published on every ledger transition so watchers can follow a
// run without polling.
type JobEvent struct {
	JobRunID string    `json:"job_run_id"`
	Status   string    `json:"status"`
	Stage    string    `json:"stage"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}
