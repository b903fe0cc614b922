package app

import (
	"context"
	"errors"
	"fmt"

	httpapi "github.com/yungbote/recipe-backend/internal/http"
	"github.com/yungbote/recipe-backend/internal/observability"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Metrics  *observability.Metrics
	Server   *httpapi.Server

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)
	if cfg.MetricsEnabled {
		a.Metrics = observability.NewMetrics()
	}

	a.Clients, err = wireClients(ctx, log, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	if err := a.Clients.Media.AssertReady(ctx); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("media tools: %w", err)
	}

	a.Repos, err = wireRepos(log, cfg.Postgres)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.Services, err = wireServices(log, cfg, a.Clients, a.Repos, a.Metrics)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.Server = wireServer(log, cfg, a.Clients, a.Repos, a.Services, a.Metrics)
	return a, nil
}

// Run blocks serving HTTP on the configured port.
func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Listening", "port", a.Cfg.Port)
	return a.Server.Run(":" + a.Cfg.Port)
}

// Shutdown stops accepting requests, drains queued jobs and waits for scratch
// cleanup, then releases clients.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if a.Services.Recipes != nil {
		if err := a.Services.Recipes.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("recipe service shutdown: %w", err))
		}
	}
	a.Close(ctx)
	return errors.Join(errs...)
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	a.Repos.Close()
	a.Clients.Close()
	if a.otelShutdown != nil {
		_ = a.otelShutdown(ctx)
		a.otelShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
