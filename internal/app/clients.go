package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/recipe-backend/internal/clients/gcp"
	"github.com/yungbote/recipe-backend/internal/clients/gemini"
	"github.com/yungbote/recipe-backend/internal/clients/redis"
	"github.com/yungbote/recipe-backend/internal/ingestion/pipeline"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
	"github.com/yungbote/recipe-backend/internal/platform/localmedia"
)

type Clients struct {
	Bucket    gcp.BlobStore
	Speech    gcp.Speech
	Vision    gcp.Vision
	Gemini    gemini.Client
	Media     localmedia.Tools
	Redis     *goredis.Client
	Captioner pipeline.FrameCaptioner
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients
	fail := func(err error) (Clients, error) {
		c.Close()
		return Clients{}, err
	}

	// Gcs
	bucket, err := gcp.NewBucketService(log, gcp.BucketConfig{
		Bucket:      cfg.Bucket,
		Storage:     cfg.Storage,
		Credentials: cfg.GoogleCredentials,
	})
	if err != nil {
		return fail(fmt.Errorf("init bucket client: %w", err))
	}
	c.Bucket = bucket

	// Gcp
	speech, err := gcp.NewSpeech(log, cfg.GoogleCredentials)
	if err != nil {
		return fail(fmt.Errorf("init speech client: %w", err))
	}
	c.Speech = speech

	// Gemini
	gem, err := gemini.New(ctx, log, gemini.Config{
		APIKey:       cfg.GeminiAPIKey,
		CaptionModel: cfg.GeminiCaptionModel,
		TextModel:    cfg.GeminiTextModel,
		Temperature:  cfg.GeminiTemperature,
	})
	if err != nil {
		return fail(fmt.Errorf("init gemini client: %w", err))
	}
	c.Gemini = gem
	c.Captioner = gem

	if cfg.CaptionProvider == CaptionProviderVision {
		vision, err := gcp.NewVision(log, cfg.GoogleCredentials)
		if err != nil {
			return fail(fmt.Errorf("init vision client: %w", err))
		}
		c.Vision = vision
		c.Captioner = vision
	}

	// Media
	c.Media = localmedia.New(log, cfg.ScratchDir)

	// Redis
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fail(fmt.Errorf("init redis: %w", err))
		}
		c.Redis = rdb
	}

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Gemini != nil {
		_ = c.Gemini.Close()
	}
	if c.Vision != nil {
		_ = c.Vision.Close()
	}
	if c.Speech != nil {
		_ = c.Speech.Close()
	}
	if c.Bucket != nil {
		_ = c.Bucket.Close()
	}
}
