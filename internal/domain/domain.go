package domain

import (
	"github.com/yungbote/recipe-backend/internal/domain/jobs"
	"github.com/yungbote/recipe-backend/internal/domain/recipes"
)

type RecipeJobRun = jobs.RecipeJobRun
type RunStats = jobs.RunStats
type JobEvent = jobs.JobEvent

type RecipeDraft = recipes.RecipeDraft
type FrameDescription = recipes.FrameDescription
type VideoJob = recipes.VideoJob
type ParseOutcome = recipes.ParseOutcome

const (
	DefaultTitle = recipes.DefaultTitle

	ParseOK       = recipes.ParseOK
	ParseFallback = recipes.ParseFallback
)

var (
	FallbackDraft = recipes.FallbackDraft
	NewVideoJob   = recipes.NewVideoJob
	JobKey        = recipes.JobKey
)
