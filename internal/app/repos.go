package app

import (
	"fmt"

	"github.com/yungbote/recipe-backend/internal/data/db"
	"github.com/yungbote/recipe-backend/internal/data/repos"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

type Repos struct {
	pg        *db.PostgresService
	RecipeJob repos.RecipeJobRunRepo
}

// wireRepos connects the job ledger. Without POSTGRES_HOST it returns an
// empty set and the service runs ledger-less.
func wireRepos(log *logger.Logger, cfg db.PostgresConfig) (Repos, error) {
	if !cfg.Enabled() {
		log.Warn("POSTGRES_HOST not set; job ledger disabled")
		return Repos{}, nil
	}
	log.Info("Wiring repos...")
	pg, err := db.NewPostgresService(log, cfg)
	if err != nil {
		return Repos{}, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrate(); err != nil {
		_ = pg.Close()
		return Repos{}, fmt.Errorf("postgres automigrate: %w", err)
	}
	return Repos{
		pg:        pg,
		RecipeJob: repos.NewRecipeJobRunRepo(pg.DB(), log),
	}, nil
}

func (r *Repos) Close() {
	if r == nil || r.pg == nil {
		return
	}
	_ = r.pg.Close()
}
