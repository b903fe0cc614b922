package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/status"

	"github.com/yungbote/recipe-backend/internal/pkg/ctxutil"
	"github.com/yungbote/recipe-backend/internal/pkg/httpx"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

type Speech interface {
	TranscribeAudioGCS(ctx context.Context, gcsURI string, cfg SpeechConfig) (*SpeechResult, error)
	Close() error
}

type SpeechConfig struct {
	LanguageCode string
	Model        string
	UseEnhanced  bool

	EnableAutomaticPunctuation bool

	SampleRateHertz   int
	AudioChannelCount int

	Encoding speechpb.RecognitionConfig_AudioEncoding
}

// DefaultSpeechConfig matches the audio the media tools produce: mono
// 16 kHz LINEAR16, en-US, punctuation on, enhanced video model.
func DefaultSpeechConfig() SpeechConfig {
	return SpeechConfig{
		LanguageCode:               "en-US",
		Model:                      "video",
		UseEnhanced:                true,
		EnableAutomaticPunctuation: true,
		SampleRateHertz:            16000,
		AudioChannelCount:          1,
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
	}
}

type SpeechResult struct {
	Provider    string `json:"provider"`
	SourceURI   string `json:"source_uri,omitempty"`
	PrimaryText string `json:"primary_text"`
	ResultCount int    `json:"result_count"`
}

// recognizeFunc submits a recognition and returns a function that awaits it.
type recognizeFunc func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (func(ctx context.Context) (*speechpb.LongRunningRecognizeResponse, error), error)

type speechService struct {
	log       *logger.Logger
	client    *speech.Client
	recognize recognizeFunc
	retry     httpx.RetryPolicy
	timeout   time.Duration
}

func NewSpeech(log *logger.Logger, credentials string) (Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := speech.NewClient(context.Background(), ClientOptions(credentials)...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	s := newSpeechService(log, func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (func(context.Context) (*speechpb.LongRunningRecognizeResponse, error), error) {
		op, err := c.LongRunningRecognize(ctx, req)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (*speechpb.LongRunningRecognizeResponse, error) {
			return op.Wait(ctx)
		}, nil
	})
	s.client = c
	return s, nil
}

func newSpeechService(log *logger.Logger, recognize recognizeFunc) *speechService {
	retry := httpx.DefaultRetryPolicy()
	retry.Retryable = isRetryableSubmit
	return &speechService{
		log:       log.With("service", "gcp.Speech"),
		recognize: recognize,
		retry:     retry,
		timeout:   30 * time.Minute,
	}
}

func (s *speechService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// TranscribeAudioGCS runs a long-running recognition over the object at
// gcsURI. Only the submission is retried; the wait is not.
func (s *speechService) TranscribeAudioGCS(ctx context.Context, gcsURI string, cfg SpeechConfig) (*SpeechResult, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("gcsURI must be gs://... got %q", gcsURI)
	}

	req := &speechpb.LongRunningRecognizeRequest{
		Config: buildSpeechRecognitionConfig(cfg),
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Uri{Uri: gcsURI}},
	}

	var wait func(context.Context) (*speechpb.LongRunningRecognizeResponse, error)
	err := httpx.Retry(ctx, s.retry, func(ctx context.Context) error {
		w, err := s.recognize(ctx, req)
		if err != nil {
			s.log.Warn("Speech submission failed", "uri", gcsURI, "error", err)
			return err
		}
		wait = w
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize submit: %w", err)
	}

	start := time.Now()
	resp, err := wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize wait: %w", err)
	}
	out := parseSpeechResponse("gcp_speech", gcsURI, resp)
	s.log.Debug("Speech recognition complete", "uri", gcsURI, "results", out.ResultCount, "chars", len(out.PrimaryText), "elapsed", time.Since(start))
	return out, nil
}

func isRetryableSubmit(err error) bool {
	return httpx.IsRetryableGRPCCode(status.Code(err))
}

func buildSpeechRecognitionConfig(cfg SpeechConfig) *speechpb.RecognitionConfig {
	def := DefaultSpeechConfig()
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = def.LanguageCode
	}
	if cfg.Encoding == speechpb.RecognitionConfig_ENCODING_UNSPECIFIED {
		cfg.Encoding = def.Encoding
	}
	if cfg.SampleRateHertz <= 0 {
		cfg.SampleRateHertz = def.SampleRateHertz
	}
	if cfg.AudioChannelCount <= 0 {
		cfg.AudioChannelCount = def.AudioChannelCount
	}
	return &speechpb.RecognitionConfig{
		LanguageCode:               cfg.LanguageCode,
		Model:                      cfg.Model,
		UseEnhanced:                cfg.UseEnhanced,
		EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
		Encoding:                   cfg.Encoding,
		SampleRateHertz:            int32(cfg.SampleRateHertz),
		AudioChannelCount:          int32(cfg.AudioChannelCount),
	}
}

// parseSpeechResponse joins the top alternative of every result with a single
// space, in service order. Empty alternatives are skipped but still counted.
func parseSpeechResponse(provider, uri string, resp *speechpb.LongRunningRecognizeResponse) *SpeechResult {
	out := &SpeechResult{Provider: provider, SourceURI: uri}
	if resp == nil {
		return out
	}
	out.ResultCount = len(resp.GetResults())
	parts := make([]string, 0, out.ResultCount)
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	out.PrimaryText = strings.Join(parts, " ")
	return out
}
