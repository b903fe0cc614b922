package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/recipe-backend/internal/domain"
	domainjobs "github.com/yungbote/recipe-backend/internal/domain/jobs"
	"github.com/yungbote/recipe-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/recipe-backend/internal/pkg/errors"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

const maxListLimit = 200

type RecipeJobRunRepo interface {
	Create(dbc dbctx.Context, run *types.RecipeJobRun) (*types.RecipeJobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RecipeJobRun, error)
	MarkRunning(dbc dbctx.Context, id uuid.UUID, stage string) error
	UpdateStage(dbc dbctx.Context, id uuid.UUID, stage string) error
	MarkSucceeded(dbc dbctx.Context, id uuid.UUID, result datatypes.JSON, stats types.RunStats) error
	MarkFailed(dbc dbctx.Context, id uuid.UUID, stage string, runErr error) error
	ListRecent(dbc dbctx.Context, limit int) ([]*types.RecipeJobRun, error)
}

type recipeJobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRecipeJobRunRepo(db *gorm.DB, baseLog *logger.Logger) RecipeJobRunRepo {
	return &recipeJobRunRepo{
		db:  db,
		log: baseLog.With("repo", "RecipeJobRunRepo"),
	}
}

func (r *recipeJobRunRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *recipeJobRunRepo) Create(dbc dbctx.Context, run *types.RecipeJobRun) (*types.RecipeJobRun, error) {
	if run == nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	if err := r.tx(dbc).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// GetByID returns pkgerrors.ErrNotFound when no row matches.
func (r *recipeJobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.RecipeJobRun, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.ErrNotFound
	}
	var run types.RecipeJobRun
	err := r.tx(dbc).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *recipeJobRunRepo) MarkRunning(dbc dbctx.Context, id uuid.UUID, stage string) error {
	now := time.Now().UTC()
	return r.update(dbc, id, map[string]interface{}{
		"status":     domainjobs.StatusRunning,
		"stage":      stage,
		"started_at": now,
	})
}

func (r *recipeJobRunRepo) UpdateStage(dbc dbctx.Context, id uuid.UUID, stage string) error {
	return r.update(dbc, id, map[string]interface{}{"stage": stage})
}

func (r *recipeJobRunRepo) MarkSucceeded(dbc dbctx.Context, id uuid.UUID, result datatypes.JSON, stats types.RunStats) error {
	now := time.Now().UTC()
	return r.update(dbc, id, map[string]interface{}{
		"status":           domainjobs.StatusSucceeded,
		"stage":            "done",
		"error":            "",
		"result":           result,
		"parse_outcome":    stats.ParseOutcome,
		"frame_count":      stats.FrameCount,
		"frames_skipped":   stats.FramesSkipped,
		"transcript_chars": stats.TranscriptChars,
		"finished_at":      now,
	})
}

func (r *recipeJobRunRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, stage string, runErr error) error {
	now := time.Now().UTC()
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	updates := map[string]interface{}{
		"status":      domainjobs.StatusFailed,
		"error":       msg,
		"finished_at": now,
	}
	if stage != "" {
		updates["stage"] = stage
	}
	return r.update(dbc, id, updates)
}

func (r *recipeJobRunRepo) ListRecent(dbc dbctx.Context, limit int) ([]*types.RecipeJobRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	var out []*types.RecipeJobRun
	if err := r.tx(dbc).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *recipeJobRunRepo) update(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return pkgerrors.ErrInvalidArgument
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.tx(dbc).
		Model(&types.RecipeJobRun{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrNotFound
	}
	return nil
}
