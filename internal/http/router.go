package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/recipe-backend/internal/http/handlers"
	httpMW "github.com/yungbote/recipe-backend/internal/http/middleware"
	"github.com/yungbote/recipe-backend/internal/observability"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	RecipeHandler       *httpH.RecipeHandler
	StorageEventHandler *httpH.StorageEventHandler
	JobHandler          *httpH.JobHandler
	HealthHandler       *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Recipes
		if cfg.RecipeHandler != nil {
			api.POST("/recipes/generate", cfg.RecipeHandler.Generate)
		}

		// Storage notifications (Pub/Sub push)
		if cfg.StorageEventHandler != nil {
			api.POST("/events/storage", cfg.StorageEventHandler.Handle)
		}

		// Job ledger
		if cfg.JobHandler != nil {
			api.GET("/recipe-jobs", cfg.JobHandler.ListJobs)
			api.GET("/recipe-jobs/:id", cfg.JobHandler.GetJob)
			api.GET("/recipe-jobs/:id/events", cfg.JobHandler.JobEvents)
		}
	}

	return r
}
