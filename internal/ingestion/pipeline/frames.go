package pipeline

import (
	"context"
	"fmt"
	"os"

	types "github.com/yungbote/recipe-backend/internal/domain"
	"github.com/yungbote/recipe-backend/internal/pkg/batch"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
	"github.com/yungbote/recipe-backend/internal/platform/localmedia"
)

// DefaultCaptionPrompt is sent with every sampled frame.
const DefaultCaptionPrompt = "Describe the cooking options, ingredients and processes visible in this frame. Be concise and concrete."

const frameMIMEType = "image/jpeg"

// captionFrames runs the visual path. Descriptions keep frame order. It
// returns the captions and how many frames were skipped.
func (s *service) captionFrames(ctx context.Context, log *logger.Logger, job types.VideoJob) ([]types.FrameDescription, int, error) {
	paths, err := s.deps.Media.SampleFrames(ctx, job.VideoFile, job.FrameDir, localmedia.FrameSampleOptions{
		FPS:         s.cfg.FrameFPS,
		Width:       s.cfg.FrameWidth,
		MaxFrames:   s.cfg.FrameMax,
		JPEGQuality: s.cfg.FrameJPEGQuality,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("sample frames: %w", err)
	}
	if len(paths) == 0 {
		return nil, 0, localmedia.ErrNoFrames
	}

	// Each slot reports its own outcome. Slots cut short by cancellation are
	// not counted.
	caption := func(ctx context.Context, i int, path string) (types.FrameDescription, error) {
		img, err := os.ReadFile(path)
		if err != nil {
			s.observeFrame(false)
			return types.FrameDescription{}, fmt.Errorf("read frame %s: %w", path, err)
		}
		text, err := s.deps.Captioner.DescribeImage(ctx, img, frameMIMEType, s.cfg.CaptionPrompt)
		if err != nil {
			if ctx.Err() == nil {
				s.observeFrame(false)
			}
			return types.FrameDescription{}, fmt.Errorf("caption frame %d: %w", i, err)
		}
		s.observeFrame(true)
		return types.FrameDescription{FramePath: path, Index: i, Description: text}, nil
	}

	if s.cfg.FramePolicy == FramePolicyAbort {
		out, err := batch.MapAll(ctx, paths, s.cfg.CaptionConcurrency, caption)
		if err != nil {
			return nil, 0, err
		}
		return out, 0, nil
	}

	settled := batch.MapSettled(ctx, paths, s.cfg.CaptionConcurrency, caption)
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	out := make([]types.FrameDescription, 0, len(settled))
	var lastErr error
	for i, r := range settled {
		if r.Err != nil {
			lastErr = r.Err
			log.Warn("Skipping frame", "frame", paths[i], "error", r.Err)
			continue
		}
		out = append(out, r.Value)
	}
	if len(out) == 0 {
		return nil, len(paths), fmt.Errorf("%w: %d frames: %v", ErrAllFramesFailed, len(paths), lastErr)
	}
	return out, len(paths) - len(out), nil
}

func (s *service) observeFrame(ok bool) {
	if s.deps.Observer != nil {
		s.deps.Observer.FrameCaptioned(ok)
	}
}
