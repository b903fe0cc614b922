package gcp

import (
	"context"
	"errors"
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

func alt(text string) *speechpb.SpeechRecognitionResult {
	return &speechpb.SpeechRecognitionResult{
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text}},
	}
}

func TestParseSpeechResponseJoinsTopAlternatives(t *testing.T) {
	resp := &speechpb.LongRunningRecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
		alt(" Today we make pancakes. "),
		alt(""),
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "Whisk the eggs."}, {Transcript: "Risk the eggs."}}},
	}}
	out := parseSpeechResponse("gcp_speech", "gs://b/a.wav", resp)
	if out.PrimaryText != "Today we make pancakes. Whisk the eggs." {
		t.Fatalf("text: got=%q", out.PrimaryText)
	}
	if out.ResultCount != 3 {
		t.Fatalf("result count: want=3 got=%d", out.ResultCount)
	}
}

func TestParseSpeechResponseEmpty(t *testing.T) {
	out := parseSpeechResponse("gcp_speech", "", &speechpb.LongRunningRecognizeResponse{})
	if out.ResultCount != 0 || out.PrimaryText != "" {
		t.Fatalf("want empty result, got %+v", out)
	}
}

func TestBuildSpeechRecognitionConfigDefaults(t *testing.T) {
	rc := buildSpeechRecognitionConfig(SpeechConfig{Model: "video", UseEnhanced: true, EnableAutomaticPunctuation: true})
	if rc.GetSampleRateHertz() != 16000 {
		t.Fatalf("sample rate: want=16000 got=%d", rc.GetSampleRateHertz())
	}
	if rc.GetLanguageCode() != "en-US" {
		t.Fatalf("language: want=en-US got=%q", rc.GetLanguageCode())
	}
	if rc.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 {
		t.Fatalf("encoding: want=LINEAR16 got=%v", rc.GetEncoding())
	}
	if !rc.GetEnableAutomaticPunctuation() || !rc.GetUseEnhanced() {
		t.Fatalf("punctuation and enhanced model must be on")
	}
}

func TestTranscribeRetriesOnlySubmission(t *testing.T) {
	submits, waits := 0, 0
	svc := newSpeechService(logger.NewNop(), func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (func(context.Context) (*speechpb.LongRunningRecognizeResponse, error), error) {
		submits++
		if req.GetAudio().GetUri() != "gs://b/job.wav" {
			t.Fatalf("uri: got=%q", req.GetAudio().GetUri())
		}
		if submits == 1 {
			return nil, status.Error(codes.Unavailable, "try again")
		}
		return func(context.Context) (*speechpb.LongRunningRecognizeResponse, error) {
			waits++
			return &speechpb.LongRunningRecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{alt("pancakes")}}, nil
		}, nil
	})
	svc.retry.Initial = time.Millisecond
	svc.retry.Max = time.Millisecond

	out, err := svc.TranscribeAudioGCS(context.Background(), "gs://b/job.wav", DefaultSpeechConfig())
	if err != nil {
		t.Fatalf("TranscribeAudioGCS: %v", err)
	}
	if out.PrimaryText != "pancakes" {
		t.Fatalf("text: got=%q", out.PrimaryText)
	}
	if submits != 2 || waits != 1 {
		t.Fatalf("submits/waits: want=2/1 got=%d/%d", submits, waits)
	}
}

func TestTranscribeDoesNotRetryWaitFailure(t *testing.T) {
	submits := 0
	boom := errors.New("operation failed")
	svc := newSpeechService(logger.NewNop(), func(context.Context, *speechpb.LongRunningRecognizeRequest) (func(context.Context) (*speechpb.LongRunningRecognizeResponse, error), error) {
		submits++
		return func(context.Context) (*speechpb.LongRunningRecognizeResponse, error) { return nil, boom }, nil
	})
	_, err := svc.TranscribeAudioGCS(context.Background(), "gs://b/job.wav", DefaultSpeechConfig())
	if !errors.Is(err, boom) {
		t.Fatalf("err: want=%v got=%v", boom, err)
	}
	if submits != 1 {
		t.Fatalf("submits: want=1 got=%d", submits)
	}
}

func TestTranscribeRejectsNonGCSURI(t *testing.T) {
	svc := newSpeechService(logger.NewNop(), nil)
	if _, err := svc.TranscribeAudioGCS(context.Background(), "/tmp/a.wav", DefaultSpeechConfig()); err == nil {
		t.Fatalf("expected error for non gs:// uri")
	}
}
