package app

import (
	"context"

	httpapi "github.com/yungbote/recipe-backend/internal/http"
	httpH "github.com/yungbote/recipe-backend/internal/http/handlers"
	"github.com/yungbote/recipe-backend/internal/observability"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

func wireServer(log *logger.Logger, cfg Config, clients Clients, reposet Repos, serviceset Services, metrics *observability.Metrics) *httpapi.Server {
	checks := map[string]httpH.ReadinessCheck{
		"media": clients.Media.AssertReady,
	}
	if clients.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return clients.Redis.Ping(ctx).Err() }
	}
	if reposet.pg != nil {
		checks["postgres"] = func(ctx context.Context) error {
			sqlDB, err := reposet.pg.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}

	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
	}
	return httpapi.NewServer(httpapi.RouterConfig{
		Log:         log,
		Metrics:     metrics,
		ServiceName: serviceName,
		CORSOrigins: cfg.CORSOrigins,

		RecipeHandler: httpH.NewRecipeHandler(serviceset.Recipes),
		StorageEventHandler: httpH.NewStorageEventHandler(log, serviceset.Recipes, httpH.StorageEventConfig{
			Bucket:        cfg.Bucket,
			TriggerPrefix: cfg.TriggerPrefix,
		}),
		JobHandler:    httpH.NewJobHandler(serviceset.Recipes),
		HealthHandler: httpH.NewHealthHandler(checks),
	})
}
