package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/recipe-backend/internal/clients/gcp"
	"github.com/yungbote/recipe-backend/internal/data/db"
	"github.com/yungbote/recipe-backend/internal/ingestion/pipeline"
	"github.com/yungbote/recipe-backend/internal/observability"
)

const (
	CaptionProviderGemini = "gemini"
	CaptionProviderVision = "vision"
)

// Config is resolved in three layers: the defaults below, an optional YAML
// file named by CONFIG_FILE, then environment variables.
type Config struct {
	Port        string   `yaml:"port" env:"PORT"`
	LogMode     string   `yaml:"log_mode" env:"LOG_MODE"`
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	Bucket              string `yaml:"bucket" env:"RECIPE_VIDEO_BUCKET"`
	ObjectStorageMode   string `yaml:"object_storage_mode" env:"OBJECT_STORAGE_MODE"`
	StorageEmulatorHost string `yaml:"storage_emulator_host" env:"STORAGE_EMULATOR_HOST"`
	GoogleCredentials   string `yaml:"google_credentials" env:"GOOGLE_APPLICATION_CREDENTIALS_JSON"`
	TriggerPrefix       string `yaml:"trigger_prefix" env:"TRIGGER_PREFIX"`

	GeminiAPIKey       string  `yaml:"gemini_api_key" env:"GEMINI_API_KEY"`
	GeminiCaptionModel string  `yaml:"gemini_caption_model" env:"GEMINI_CAPTION_MODEL"`
	GeminiTextModel    string  `yaml:"gemini_text_model" env:"GEMINI_TEXT_MODEL"`
	GeminiTemperature  float32 `yaml:"gemini_temperature" env:"GEMINI_TEMPERATURE"`
	CaptionProvider    string  `yaml:"caption_provider" env:"CAPTION_PROVIDER"`

	FrameSampleFPS          float64 `yaml:"frame_sample_fps" env:"FRAME_SAMPLE_FPS"`
	FrameMax                int     `yaml:"frame_max" env:"FRAME_MAX"`
	FrameWidth              int     `yaml:"frame_width" env:"FRAME_WIDTH"`
	FrameCaptionConcurrency int     `yaml:"frame_caption_concurrency" env:"FRAME_CAPTION_CONCURRENCY"`
	FrameFailurePolicy      string  `yaml:"frame_failure_policy" env:"FRAME_FAILURE_POLICY"`

	ScratchDir         string `yaml:"scratch_dir" env:"SCRATCH_DIR"`
	TempAudioPrefix    string `yaml:"temp_audio_prefix" env:"TEMP_AUDIO_PREFIX"`
	SpeechLanguageCode string `yaml:"speech_language_code" env:"SPEECH_LANGUAGE_CODE"`
	SpeechModel        string `yaml:"speech_model" env:"SPEECH_MODEL"`

	JobTimeout        time.Duration `yaml:"job_timeout" env:"RECIPE_JOB_TIMEOUT"`
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs" env:"MAX_CONCURRENT_JOBS"`
	JobBacklog        int           `yaml:"job_backlog" env:"JOB_BACKLOG"`

	Postgres db.PostgresConfig `yaml:"postgres"`

	RedisAddr     string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" env:"REDIS_DB"`
	CacheTTL      time.Duration `yaml:"cache_ttl" env:"RECIPE_CACHE_TTL"`

	MetricsEnabled bool                     `yaml:"metrics_enabled" env:"METRICS_ENABLED"`
	Otel           observability.OtelConfig `yaml:"otel"`

	// Storage is derived from ObjectStorageMode and StorageEmulatorHost.
	Storage gcp.ObjectStorageConfig `yaml:"-"`
}

func defaultConfig() Config {
	pc := pipeline.DefaultConfig()
	return Config{
		Port:                    "8080",
		LogMode:                 "development",
		TriggerPrefix:           "uploads/",
		GeminiCaptionModel:      "gemini-1.5-flash",
		GeminiTextModel:         "gemini-1.5-pro",
		GeminiTemperature:       0.2,
		CaptionProvider:         CaptionProviderGemini,
		FrameSampleFPS:          pc.FrameFPS,
		FrameMax:                pc.FrameMax,
		FrameWidth:              pc.FrameWidth,
		FrameCaptionConcurrency: pc.CaptionConcurrency,
		FrameFailurePolicy:      string(pc.FramePolicy),
		ScratchDir:              pc.ScratchRoot,
		TempAudioPrefix:         pc.TempAudioPrefix,
		SpeechLanguageCode:      pc.Speech.LanguageCode,
		SpeechModel:             pc.Speech.Model,
		JobTimeout:              9 * time.Minute,
		MaxConcurrentJobs:       2,
		JobBacklog:              64,
		CacheTTL:                24 * time.Hour,
		MetricsEnabled:          true,
		Otel: observability.OtelConfig{
			ServiceName: "recipe-backend",
			SampleRatio: 0.1,
		},
	}
}

// LoadConfig reads CONFIG_FILE (when set) and the environment.
func LoadConfig() (Config, error) {
	return loadConfig(strings.TrimSpace(os.Getenv("CONFIG_FILE")))
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if strings.TrimSpace(c.Bucket) == "" {
		errs = append(errs, errors.New("RECIPE_VIDEO_BUCKET is required"))
	}
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}
	switch c.CaptionProvider {
	case CaptionProviderGemini, CaptionProviderVision:
	default:
		errs = append(errs, fmt.Errorf("CAPTION_PROVIDER=%q (allowed: %q, %q)", c.CaptionProvider, CaptionProviderGemini, CaptionProviderVision))
	}
	switch pipeline.FramePolicy(c.FrameFailurePolicy) {
	case pipeline.FramePolicySkip, pipeline.FramePolicyAbort:
	default:
		errs = append(errs, fmt.Errorf("FRAME_FAILURE_POLICY=%q (allowed: %q, %q)", c.FrameFailurePolicy, pipeline.FramePolicySkip, pipeline.FramePolicyAbort))
	}
	if c.FrameSampleFPS <= 0 {
		errs = append(errs, errors.New("FRAME_SAMPLE_FPS must be positive"))
	}
	if c.FrameCaptionConcurrency <= 0 {
		errs = append(errs, errors.New("FRAME_CAPTION_CONCURRENCY must be positive"))
	}
	if c.MaxConcurrentJobs <= 0 {
		errs = append(errs, errors.New("MAX_CONCURRENT_JOBS must be positive"))
	}
	if c.JobTimeout <= 0 {
		errs = append(errs, errors.New("RECIPE_JOB_TIMEOUT must be positive"))
	}
	storage, err := gcp.ResolveObjectStorageConfig(c.ObjectStorageMode, c.StorageEmulatorHost)
	if err != nil {
		errs = append(errs, err)
	}
	c.Storage = storage
	return errors.Join(errs...)
}

func (c Config) pipelineConfig() pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.ScratchRoot = c.ScratchDir
	pc.TempAudioPrefix = c.TempAudioPrefix
	pc.Speech.LanguageCode = c.SpeechLanguageCode
	pc.Speech.Model = c.SpeechModel
	pc.FrameFPS = c.FrameSampleFPS
	pc.FrameWidth = c.FrameWidth
	pc.FrameMax = c.FrameMax
	pc.CaptionConcurrency = c.FrameCaptionConcurrency
	pc.FramePolicy = pipeline.FramePolicy(c.FrameFailurePolicy)
	return pc
}
