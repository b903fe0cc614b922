package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/recipe-backend/internal/clients/redis"
	"github.com/yungbote/recipe-backend/internal/data/repos"
	types "github.com/yungbote/recipe-backend/internal/domain"
	domainjobs "github.com/yungbote/recipe-backend/internal/domain/jobs"
	"github.com/yungbote/recipe-backend/internal/ingestion/pipeline"
	"github.com/yungbote/recipe-backend/internal/jobs/worker"
	"github.com/yungbote/recipe-backend/internal/observability"
	"github.com/yungbote/recipe-backend/internal/pkg/ctxutil"
	"github.com/yungbote/recipe-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/recipe-backend/internal/pkg/errors"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

// RecipeService is the single entry into the video-to-recipe pipeline for
// both the RPC and the storage trigger.
type RecipeService interface {
	// Generate runs one job synchronously and returns its draft.
	Generate(ctx context.Context, sourcePath string) (*types.RecipeDraft, error)
	// Enqueue records a storage-triggered job and runs it in the background.
	Enqueue(ctx context.Context, sourcePath string) (*types.RecipeJobRun, error)
	GetJob(ctx context.Context, id uuid.UUID) (*types.RecipeJobRun, error)
	ListJobs(ctx context.Context, limit int) ([]*types.RecipeJobRun, error)
	// WatchJob blocks delivering ledger transitions for id until ctx is done.
	WatchJob(ctx context.Context, id uuid.UUID, onEvent func(types.JobEvent)) error
	Shutdown(ctx context.Context) error
}

type RecipeServiceConfig struct {
	Bucket            string
	JobTimeout        time.Duration
	MaxConcurrentJobs int
	JobBacklog        int
}

type RecipeServiceDeps struct {
	Log      *logger.Logger
	Pipeline pipeline.Service
	// Optional collaborators.
	Ledger  repos.RecipeJobRunRepo
	Cache   redis.RecipeCache
	Events  redis.JobEventBus
	Metrics *observability.Metrics
}

type recipeService struct {
	log     *logger.Logger
	cfg     RecipeServiceConfig
	pipe    pipeline.Service
	ledger  repos.RecipeJobRunRepo
	cache   redis.RecipeCache
	events  redis.JobEventBus
	metrics *observability.Metrics
	pool    *worker.Pool
}

func NewRecipeService(cfg RecipeServiceConfig, deps RecipeServiceDeps) (RecipeService, error) {
	if deps.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline required")
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 9 * time.Minute
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 2
	}
	if cfg.JobBacklog <= 0 {
		cfg.JobBacklog = 64
	}
	return &recipeService{
		log:     deps.Log.With("service", "RecipeService"),
		cfg:     cfg,
		pipe:    deps.Pipeline,
		ledger:  deps.Ledger,
		cache:   deps.Cache,
		events:  deps.Events,
		metrics: deps.Metrics,
		pool:    worker.NewPool(deps.Log, cfg.MaxConcurrentJobs, cfg.JobBacklog),
	}, nil
}

func (s *recipeService) Generate(ctx context.Context, sourcePath string) (*types.RecipeDraft, error) {
	ctx = ctxutil.Default(ctx)
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return nil, fmt.Errorf("%w: filePath is required", pkgerrors.ErrInvalidArgument)
	}

	if draft, ok := s.cached(ctx, sourcePath); ok {
		return draft, nil
	}

	run, err := s.createRun(ctx, sourcePath, domainjobs.TriggerRPC)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, run)
}

func (s *recipeService) Enqueue(ctx context.Context, sourcePath string) (*types.RecipeJobRun, error) {
	ctx = ctxutil.Default(ctx)
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return nil, fmt.Errorf("%w: object name is required", pkgerrors.ErrInvalidArgument)
	}
	run, err := s.createRun(ctx, sourcePath, domainjobs.TriggerStorage)
	if err != nil {
		return nil, err
	}

	// The worker owns run from here on; the caller gets a snapshot.
	queued := *run
	// The request that enqueued the job must not cancel it.
	td := ctxutil.GetTraceData(ctx)
	err = s.pool.Submit(worker.Task{
		ID: run.ID.String(),
		Run: func(poolCtx context.Context) error {
			jobCtx := poolCtx
			if td != nil {
				jobCtx = ctxutil.WithTraceData(jobCtx, &ctxutil.TraceData{TraceID: td.TraceID, RequestID: td.RequestID})
			}
			_, err := s.execute(jobCtx, run)
			return err
		},
	})
	if err != nil {
		s.finishFailed(context.WithoutCancel(ctx), run, "", err)
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrUnavailable, err)
	}
	s.log.Info("Recipe job queued", "job_run_id", queued.ID, "source_path", sourcePath)
	return &queued, nil
}

func (s *recipeService) GetJob(ctx context.Context, id uuid.UUID) (*types.RecipeJobRun, error) {
	if s.ledger == nil {
		return nil, fmt.Errorf("%w: job ledger is not configured", pkgerrors.ErrUnavailable)
	}
	return s.ledger.GetByID(dbctx.Context{Ctx: ctxutil.Default(ctx)}, id)
}

func (s *recipeService) ListJobs(ctx context.Context, limit int) ([]*types.RecipeJobRun, error) {
	if s.ledger == nil {
		return nil, fmt.Errorf("%w: job ledger is not configured", pkgerrors.ErrUnavailable)
	}
	return s.ledger.ListRecent(dbctx.Context{Ctx: ctxutil.Default(ctx)}, limit)
}

func (s *recipeService) WatchJob(ctx context.Context, id uuid.UUID, onEvent func(types.JobEvent)) error {
	if s.events == nil {
		return fmt.Errorf("%w: job events are not configured", pkgerrors.ErrUnavailable)
	}
	return s.events.Subscribe(ctxutil.Default(ctx), id.String(), onEvent)
}

// Shutdown drains queued jobs, then waits for scratch cleanups.
func (s *recipeService) Shutdown(ctx context.Context) error {
	ctx = ctxutil.Default(ctx)
	poolErr := s.pool.Stop(ctx)
	cleanErr := s.pipe.WaitCleanup(ctx)
	return errors.Join(poolErr, cleanErr)
}

func (s *recipeService) cached(ctx context.Context, sourcePath string) (*types.RecipeDraft, bool) {
	if s.cache == nil {
		return nil, false
	}
	draft, ok, err := s.cache.Get(ctx, s.cfg.Bucket, sourcePath)
	if err != nil {
		s.log.Warn("Recipe cache lookup failed", "source_path", sourcePath, "error", err)
		return nil, false
	}
	s.metrics.CacheLookup(ok)
	if ok {
		s.log.Debug("Recipe cache hit", "source_path", sourcePath)
	}
	return draft, ok
}

func (s *recipeService) createRun(ctx context.Context, sourcePath, trigger string) (*types.RecipeJobRun, error) {
	key, err := types.JobKey(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidArgument, err)
	}
	run := &types.RecipeJobRun{
		ID:         uuid.New(),
		JobKey:     key,
		SourcePath: sourcePath,
		Trigger:    trigger,
		Status:     domainjobs.StatusQueued,
		Stage:      domainjobs.StatusQueued,
	}
	if s.ledger == nil {
		return run, nil
	}
	created, err := s.ledger.Create(dbctx.Context{Ctx: ctx}, run)
	if err != nil {
		return nil, fmt.Errorf("record job run: %w", err)
	}
	s.publish(ctx, created)
	return created, nil
}

func (s *recipeService) execute(ctx context.Context, run *types.RecipeJobRun) (*types.RecipeDraft, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	td := ctxutil.GetTraceData(ctx)
	next := &ctxutil.TraceData{JobRunID: run.ID.String()}
	if td != nil {
		next.TraceID, next.RequestID = td.TraceID, td.RequestID
	}
	ctx = ctxutil.WithTraceData(ctx, next)

	done := s.metrics.JobStarted(run.Trigger)
	s.transition(ctx, run, domainjobs.StatusRunning, string(pipeline.StageIngest), func(dbc dbctx.Context) error {
		return s.ledger.MarkRunning(dbc, run.ID, string(pipeline.StageIngest))
	})

	res, err := s.pipe.Run(ctx, pipeline.Request{
		SourcePath: run.SourcePath,
		RunID:      run.ID.String(),
		OnStage: func(stage pipeline.Stage) {
			if stage == pipeline.StageIngest {
				return
			}
			s.transition(ctx, run, domainjobs.StatusRunning, string(stage), func(dbc dbctx.Context) error {
				return s.ledger.UpdateStage(dbc, run.ID, string(stage))
			})
		},
	})
	if err != nil {
		done(domainjobs.StatusFailed)
		s.finishFailed(context.WithoutCancel(ctx), run, string(pipeline.FailedStage(err)), err)
		return nil, err
	}
	done(domainjobs.StatusSucceeded)

	draft := res.Draft.Normalize()
	s.finishSucceeded(context.WithoutCancel(ctx), run, draft, res)
	if res.Parse == types.ParseOK && s.cache != nil {
		if err := s.cache.Put(ctx, s.cfg.Bucket, run.SourcePath, draft); err != nil {
			s.log.Warn("Recipe cache store failed", "source_path", run.SourcePath, "error", err)
		}
	}
	return &draft, nil
}

// transition applies a ledger update when a ledger exists and always
// publishes the new state. Ledger failures never fail the job.
func (s *recipeService) transition(ctx context.Context, run *types.RecipeJobRun, status, stage string, write func(dbctx.Context) error) {
	run.Status, run.Stage = status, stage
	if s.ledger != nil {
		if err := write(dbctx.Context{Ctx: ctx}); err != nil {
			s.log.Warn("Job ledger update failed", "job_run_id", run.ID, "stage", stage, "error", err)
		}
	}
	s.publish(ctx, run)
}

func (s *recipeService) finishSucceeded(ctx context.Context, run *types.RecipeJobRun, draft types.RecipeDraft, res *pipeline.Result) {
	raw, err := json.Marshal(draft)
	if err != nil {
		s.log.Warn("Failed to encode draft for ledger", "job_run_id", run.ID, "error", err)
		raw = []byte("{}")
	}
	stats := types.RunStats{
		ParseOutcome:    string(res.Parse),
		FrameCount:      len(res.Frames),
		FramesSkipped:   res.FramesSkipped,
		TranscriptChars: len(res.Transcript),
	}
	run.Result = datatypes.JSON(raw)
	run.ParseOutcome = stats.ParseOutcome
	run.FrameCount, run.FramesSkipped, run.TranscriptChars = stats.FrameCount, stats.FramesSkipped, stats.TranscriptChars
	s.transition(ctx, run, domainjobs.StatusSucceeded, "done", func(dbc dbctx.Context) error {
		return s.ledger.MarkSucceeded(dbc, run.ID, run.Result, stats)
	})
}

func (s *recipeService) finishFailed(ctx context.Context, run *types.RecipeJobRun, stage string, runErr error) {
	run.Error = runErr.Error()
	if stage == "" {
		stage = run.Stage
	}
	s.transition(ctx, run, domainjobs.StatusFailed, stage, func(dbc dbctx.Context) error {
		return s.ledger.MarkFailed(dbc, run.ID, stage, runErr)
	})
}

func (s *recipeService) publish(ctx context.Context, run *types.RecipeJobRun) {
	if s.events == nil {
		return
	}
	ev := types.JobEvent{
		JobRunID: run.ID.String(),
		Status:   run.Status,
		Stage:    run.Stage,
		Error:    run.Error,
		At:       time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Debug("Job event publish failed", "job_run_id", run.ID, "error", err)
	}
}
