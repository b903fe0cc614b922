package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/recipe-backend/internal/data/repos/jobs"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

type RecipeJobRunRepo = jobs.RecipeJobRunRepo

func NewRecipeJobRunRepo(db *gorm.DB, baseLog *logger.Logger) RecipeJobRunRepo {
	return jobs.NewRecipeJobRunRepo(db, baseLog)
}
