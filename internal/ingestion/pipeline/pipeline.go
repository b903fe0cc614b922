package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/recipe-backend/internal/clients/gcp"
	types "github.com/yungbote/recipe-backend/internal/domain"
	"github.com/yungbote/recipe-backend/internal/pkg/ctxutil"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
	"github.com/yungbote/recipe-backend/internal/platform/localmedia"
)

// BlobStore is the object storage the pipeline reads videos from and stages
// temporary audio in.
type BlobStore interface {
	Download(ctx context.Context, objectPath, localPath string) error
	Upload(ctx context.Context, localPath, objectPath string) error
	Delete(ctx context.Context, objectPath string) error
	URI(objectPath string) string
}

type MediaTools interface {
	ExtractAudioFromVideo(ctx context.Context, videoPath, outPath string, opts localmedia.AudioExtractOptions) (string, error)
	SampleFrames(ctx context.Context, videoPath, outDir string, opts localmedia.FrameSampleOptions) ([]string, error)
}

type Transcriber interface {
	TranscribeAudioGCS(ctx context.Context, gcsURI string, cfg gcp.SpeechConfig) (*gcp.SpeechResult, error)
}

type FrameCaptioner interface {
	DescribeImage(ctx context.Context, img []byte, mimeType string, prompt string) (string, error)
}

type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Observer receives per-stage timings and frame outcomes. A nil Observer is
// allowed.
type Observer interface {
	StageDone(stage Stage, elapsed time.Duration, err error)
	FrameCaptioned(ok bool)
	Parsed(outcome types.ParseOutcome)
}

type FramePolicy string

const (
	// FramePolicySkip drops frames whose caption failed.
	FramePolicySkip FramePolicy = "skip"
	// FramePolicyAbort fails the run on the first caption failure.
	FramePolicyAbort FramePolicy = "abort"
)

type Config struct {
	ScratchRoot     string
	TempAudioPrefix string

	AudioSampleRateHz int
	Speech            gcp.SpeechConfig

	FrameFPS           float64
	FrameWidth         int
	FrameMax           int
	FrameJPEGQuality   int
	CaptionConcurrency int
	FramePolicy        FramePolicy
	CaptionPrompt      string
}

func DefaultConfig() Config {
	return Config{
		ScratchRoot:        os.TempDir(),
		TempAudioPrefix:    "temp-audio",
		AudioSampleRateHz:  16000,
		Speech:             gcp.DefaultSpeechConfig(),
		FrameFPS:           1.5,
		FrameMax:           300,
		FrameJPEGQuality:   3,
		CaptionConcurrency: 4,
		FramePolicy:        FramePolicySkip,
		CaptionPrompt:      DefaultCaptionPrompt,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.ScratchRoot == "" {
		c.ScratchRoot = def.ScratchRoot
	}
	if c.TempAudioPrefix == "" {
		c.TempAudioPrefix = def.TempAudioPrefix
	}
	if c.AudioSampleRateHz <= 0 {
		c.AudioSampleRateHz = def.AudioSampleRateHz
	}
	c.Speech.SampleRateHertz = c.AudioSampleRateHz
	c.Speech.AudioChannelCount = 1
	if c.FrameFPS <= 0 {
		c.FrameFPS = def.FrameFPS
	}
	if c.CaptionConcurrency <= 0 {
		c.CaptionConcurrency = def.CaptionConcurrency
	}
	if c.FramePolicy != FramePolicyAbort {
		c.FramePolicy = FramePolicySkip
	}
	if c.CaptionPrompt == "" {
		c.CaptionPrompt = def.CaptionPrompt
	}
	return c
}

type Deps struct {
	Log       *logger.Logger
	Blobs     BlobStore
	Media     MediaTools
	Speech    Transcriber
	Captioner FrameCaptioner
	Generator TextGenerator
	Observer  Observer
}

type Request struct {
	SourcePath string
	// RunID names this run's scratch directory and staged audio object. A
	// random id is used when empty.
	RunID string
	// OnStage is called synchronously as each stage starts.
	OnStage func(stage Stage)
}

type Result struct {
	Job           types.VideoJob           `json:"-"`
	Draft         types.RecipeDraft        `json:"draft"`
	Parse         types.ParseOutcome       `json:"parse_outcome"`
	Transcript    string                   `json:"transcript"`
	Frames        []types.FrameDescription `json:"frames"`
	FramesSkipped int                      `json:"frames_skipped"`
	Prompt        string                   `json:"-"`
}

// Service turns one uploaded video into a recipe draft.
type Service interface {
	Run(ctx context.Context, req Request) (*Result, error)
	// WaitCleanup blocks until every scheduled scratch cleanup has finished
	// or ctx is done.
	WaitCleanup(ctx context.Context) error
}

type service struct {
	log    *logger.Logger
	cfg    Config
	deps   Deps
	tracer trace.Tracer

	removeAll func(string) error
	cleanupWG sync.WaitGroup
}

func New(cfg Config, deps Deps) (Service, error) {
	return newService(cfg, deps)
}

func newService(cfg Config, deps Deps) (*service, error) {
	if deps.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	switch {
	case deps.Blobs == nil:
		return nil, fmt.Errorf("blob store required")
	case deps.Media == nil:
		return nil, fmt.Errorf("media tools required")
	case deps.Speech == nil:
		return nil, fmt.Errorf("speech client required")
	case deps.Captioner == nil:
		return nil, fmt.Errorf("frame captioner required")
	case deps.Generator == nil:
		return nil, fmt.Errorf("text generator required")
	}
	return &service{
		log:       deps.Log.With("service", "RecipePipeline"),
		cfg:       cfg.normalized(),
		deps:      deps,
		tracer:    otel.Tracer("recipe-backend/pipeline"),
		removeAll: os.RemoveAll,
	}, nil
}

func (s *service) Run(ctx context.Context, req Request) (*Result, error) {
	ctx = ctxutil.Default(ctx)

	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	job, err := types.NewVideoJob(req.SourcePath, s.cfg.ScratchRoot, s.cfg.TempAudioPrefix, runID)
	if err != nil {
		return nil, stageErr(StageIngest, fmt.Errorf("%w: %v", ErrInvalidSource, err))
	}
	log := s.log.With(append([]interface{}{"job_id", job.JobID, "run_id", job.RunID, "source_path", job.SourcePath}, ctxutil.LogFields(ctx)...)...)

	ctx, span := s.tracer.Start(ctx, "recipe.run", trace.WithAttributes(
		attribute.String("recipe.job_id", job.JobID),
		attribute.String("recipe.run_id", job.RunID),
		attribute.String("recipe.source_path", job.SourcePath),
	))
	defer span.End()

	// Scratch is removed whatever the outcome.
	defer s.scheduleCleanup(log, job)

	res, err := s.run(ctx, log, job, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(FailedStage(err)))
		log.Error("Recipe pipeline failed", "stage", FailedStage(err), "error", err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("recipe.parse_outcome", string(res.Parse)),
		attribute.Int("recipe.frames", len(res.Frames)),
		attribute.Int("recipe.frames_skipped", res.FramesSkipped),
	)
	log.Info("Recipe pipeline complete",
		"parse_outcome", res.Parse,
		"frames", len(res.Frames),
		"frames_skipped", res.FramesSkipped,
		"transcript_chars", len(res.Transcript),
	)
	return res, nil
}

func (s *service) run(ctx context.Context, log *logger.Logger, job types.VideoJob, req Request) (*Result, error) {
	notify := func(stage Stage) {
		if req.OnStage != nil {
			req.OnStage(stage)
		}
	}

	notify(StageIngest)
	if err := s.timed(ctx, StageIngest, func(ctx context.Context) error { return s.ingest(ctx, job) }); err != nil {
		return nil, err
	}

	notify(StageExtract)
	var (
		transcript string
		frames     []types.FrameDescription
		skipped    int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.timed(gctx, StageAudio, func(ctx context.Context) error {
			t, err := s.transcribe(ctx, log, job)
			transcript = t
			return err
		})
	})
	g.Go(func() error {
		return s.timed(gctx, StageFrames, func(ctx context.Context) error {
			f, n, err := s.captionFrames(ctx, log, job)
			frames, skipped = f, n
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	notify(StageSynthesis)
	res := &Result{Job: job, Transcript: transcript, Frames: frames, FramesSkipped: skipped}
	err := s.timed(ctx, StageSynthesis, func(ctx context.Context) error {
		return s.synthesize(ctx, log, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// timed runs fn inside a span, reports the elapsed time and tags errors with
// the stage.
func (s *service) timed(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "recipe."+string(stage))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if s.deps.Observer != nil {
		s.deps.Observer.StageDone(stage, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return stageErr(stage, err)
	}
	return nil
}

func (s *service) ingest(ctx context.Context, job types.VideoJob) error {
	if err := os.MkdirAll(job.RunDir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	if err := s.deps.Blobs.Download(ctx, job.SourcePath, job.VideoFile); err != nil {
		if errors.Is(err, gcp.ErrObjectNotFound) {
			return fmt.Errorf("%w: %v", ErrSourceNotFound, err)
		}
		return err
	}
	if err := os.MkdirAll(job.FrameDir, 0o755); err != nil {
		return fmt.Errorf("create frame dir: %w", err)
	}
	return nil
}

func (s *service) WaitCleanup(ctx context.Context) error {
	ctx = ctxutil.Default(ctx)
	done := make(chan struct{})
	go func() {
		s.cleanupWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
