package pipeline

import (
	"context"
	"fmt"
	"time"

	types "github.com/yungbote/recipe-backend/internal/domain"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
	"github.com/yungbote/recipe-backend/internal/platform/localmedia"
)

const tempAudioDeleteTimeout = 30 * time.Second

// transcribe runs the audio path: transcode, stage the WAV in the bucket,
// recognize it and drop the staged object.
func (s *service) transcribe(ctx context.Context, log *logger.Logger, job types.VideoJob) (string, error) {
	audioPath, err := s.deps.Media.ExtractAudioFromVideo(ctx, job.VideoFile, job.AudioFile, localmedia.AudioExtractOptions{
		SampleRateHz: s.cfg.AudioSampleRateHz,
		Channels:     1,
	})
	if err != nil {
		return "", fmt.Errorf("extract audio: %w", err)
	}

	if err := s.deps.Blobs.Upload(ctx, audioPath, job.TempAudioBlob); err != nil {
		return "", fmt.Errorf("stage audio: %w", err)
	}
	defer s.deleteTempAudio(ctx, log, job.TempAudioBlob)

	uri := s.deps.Blobs.URI(job.TempAudioBlob)
	res, err := s.deps.Speech.TranscribeAudioGCS(ctx, uri, s.cfg.Speech)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if res == nil || res.ResultCount == 0 {
		return "", ErrNoSpeechResults
	}
	log.Debug("Transcript ready", "results", res.ResultCount, "chars", len(res.PrimaryText))
	return res.PrimaryText, nil
}

// deleteTempAudio must never fail the job. It runs on a detached context so a
// cancelled run still removes the staged object.
func (s *service) deleteTempAudio(ctx context.Context, log *logger.Logger, objectPath string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tempAudioDeleteTimeout)
	defer cancel()
	if err := s.deps.Blobs.Delete(dctx, objectPath); err != nil {
		log.Warn("Failed to delete temporary audio", "object", objectPath, "error", err)
	}
}
