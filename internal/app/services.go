package app

import (
	"fmt"

	"github.com/yungbote/recipe-backend/internal/clients/redis"
	"github.com/yungbote/recipe-backend/internal/ingestion/pipeline"
	"github.com/yungbote/recipe-backend/internal/observability"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
	"github.com/yungbote/recipe-backend/internal/services"
)

type Services struct {
	Pipeline pipeline.Service
	Recipes  services.RecipeService
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, reposet Repos, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	deps := pipeline.Deps{
		Log:       log,
		Blobs:     clients.Bucket,
		Media:     clients.Media,
		Speech:    clients.Speech,
		Captioner: clients.Captioner,
		Generator: clients.Gemini,
	}
	if metrics != nil {
		deps.Observer = metrics
	}
	pipe, err := pipeline.New(cfg.pipelineConfig(), deps)
	if err != nil {
		return Services{}, fmt.Errorf("init pipeline: %w", err)
	}

	recipeDeps := services.RecipeServiceDeps{
		Log:      log,
		Pipeline: pipe,
		Ledger:   reposet.RecipeJob,
		Metrics:  metrics,
	}
	if clients.Redis != nil {
		recipeDeps.Cache = redis.NewRecipeCache(log, clients.Redis, cfg.CacheTTL)
		recipeDeps.Events = redis.NewJobEventBus(log, clients.Redis)
	}
	recipes, err := services.NewRecipeService(services.RecipeServiceConfig{
		Bucket:            cfg.Bucket,
		JobTimeout:        cfg.JobTimeout,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		JobBacklog:        cfg.JobBacklog,
	}, recipeDeps)
	if err != nil {
		return Services{}, fmt.Errorf("init recipe service: %w", err)
	}

	return Services{Pipeline: pipe, Recipes: recipes}, nil
}
