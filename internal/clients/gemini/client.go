package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/yungbote/recipe-backend/internal/pkg/ctxutil"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

// ErrEmptyResponse is returned when the model answered without any text part.
var ErrEmptyResponse = errors.New("gemini returned no text")

type Client interface {
	// DescribeImage sends one inline image plus prompt and returns the first
	// text part of the first candidate.
	DescribeImage(ctx context.Context, img []byte, mimeType string, prompt string) (string, error)
	// GenerateText returns the concatenated text parts of the first candidate.
	GenerateText(ctx context.Context, prompt string) (string, error)
	Close() error
}

type Config struct {
	APIKey         string
	CaptionModel   string
	TextModel      string
	Temperature    float32
	CandidateCount int32
	CallTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.CaptionModel) == "" {
		c.CaptionModel = "gemini-1.5-flash"
	}
	if strings.TrimSpace(c.TextModel) == "" {
		c.TextModel = "gemini-1.5-pro"
	}
	if c.Temperature < 0 {
		c.Temperature = 0.2
	}
	if c.CandidateCount <= 0 {
		c.CandidateCount = 1
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 2 * time.Minute
	}
	return c
}

// contentGenerator is satisfied by *genai.GenerativeModel.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type client struct {
	log     *logger.Logger
	genai   *genai.Client
	caption contentGenerator
	text    contentGenerator
	cfg     Config
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}
	cfg = cfg.withDefaults()
	gc, err := genai.NewClient(ctxutil.Default(ctx), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	captionModel := gc.GenerativeModel(cfg.CaptionModel)
	textModel := gc.GenerativeModel(cfg.TextModel)
	textModel.SetTemperature(cfg.Temperature)
	textModel.SetCandidateCount(cfg.CandidateCount)

	c := newClient(log, captionModel, textModel, cfg)
	c.genai = gc
	c.log.Info("Gemini client initialized", "caption_model", cfg.CaptionModel, "text_model", cfg.TextModel, "temperature", cfg.Temperature)
	return c, nil
}

func newClient(log *logger.Logger, caption, text contentGenerator, cfg Config) *client {
	return &client{
		log:     log.With("service", "GeminiClient"),
		caption: caption,
		text:    text,
		cfg:     cfg.withDefaults(),
	}
}

func (c *client) Close() error {
	if c == nil || c.genai == nil {
		return nil
	}
	return c.genai.Close()
}

func (c *client) DescribeImage(ctx context.Context, img []byte, mimeType string, prompt string) (string, error) {
	if len(img) == 0 {
		return "", fmt.Errorf("empty image")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), c.cfg.CallTimeout)
	defer cancel()

	resp, err := c.caption.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: img},
		genai.Text(prompt),
	)
	if reason, blocked := blockReason(err); blocked {
		c.log.Warn("Gemini blocked caption response", "reason", reason)
		return "", fmt.Errorf("%w: %s", ErrEmptyResponse, reason)
	}
	if err != nil {
		return "", fmt.Errorf("gemini caption: %w", err)
	}
	text, ok := firstText(resp)
	if !ok {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *client) GenerateText(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), c.cfg.CallTimeout)
	defer cancel()

	resp, err := c.text.GenerateContent(ctx, genai.Text(prompt))
	if reason, blocked := blockReason(err); blocked {
		c.log.Warn("Gemini blocked generation response", "reason", reason)
		return "", fmt.Errorf("%w: %s", ErrEmptyResponse, reason)
	}
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := candidateText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// blockReason reports whether err is a safety or recitation block. The call
// itself succeeded, so callers treat it like an empty answer.
func blockReason(err error) (string, bool) {
	var blocked *genai.BlockedError
	if !errors.As(err, &blocked) {
		return "", false
	}
	switch {
	case blocked.Candidate != nil:
		return blocked.Candidate.FinishReason.String(), true
	case blocked.PromptFeedback != nil:
		return blocked.PromptFeedback.BlockReason.String(), true
	}
	return blocked.Error(), true
}

func firstText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			return string(t), true
		}
	}
	return "", false
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
