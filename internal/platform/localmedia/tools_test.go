package localmedia

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

// fakeRunner records invocations and simulates ffmpeg/ffprobe side effects.
type fakeRunner struct {
	calls     [][]string
	probeOut  string
	probeErr  error
	ffmpegErr error
	stderr    string
	frames    int
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (CommandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	switch name {
	case "ffprobe":
		return CommandResult{Stdout: f.probeOut}, f.probeErr
	case "ffmpeg":
		if f.ffmpegErr != nil {
			return CommandResult{Stderr: f.stderr, ExitCode: 1}, f.ffmpegErr
		}
		out := args[len(args)-1]
		if strings.Contains(out, "%06d") {
			dir := filepath.Dir(out)
			for i := f.frames; i >= 1; i-- {
				p := filepath.Join(dir, fmt.Sprintf("frame_%06d.jpg", i))
				if err := os.WriteFile(p, []byte("jpg"), 0o644); err != nil {
					return CommandResult{}, err
				}
			}
			return CommandResult{}, nil
		}
		return CommandResult{}, os.WriteFile(out, []byte("RIFF"), 0o644)
	}
	return CommandResult{}, fmt.Errorf("unexpected command %s", name)
}

func newTestTools(t *testing.T, r *fakeRunner) Tools {
	t.Helper()
	return New(logger.NewNop(), t.TempDir(), WithRunner(r))
}

func TestExtractAudioFromVideoArgs(t *testing.T) {
	r := &fakeRunner{probeOut: "1\n"}
	tools := newTestTools(t, r)
	out := filepath.Join(t.TempDir(), "job.wav")

	got, err := tools.ExtractAudioFromVideo(context.Background(), "in.mp4", out, AudioExtractOptions{})
	if err != nil {
		t.Fatalf("ExtractAudioFromVideo: %v", err)
	}
	if got != out {
		t.Fatalf("out: want=%q got=%q", out, got)
	}
	if len(r.calls) != 2 {
		t.Fatalf("calls: want=2 got=%d", len(r.calls))
	}
	joined := strings.Join(r.calls[1], " ")
	for _, want := range []string{"-vn", "-acodec pcm_s16le", "-ac 1", "-ar 16000", "-f wav"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("ffmpeg args missing %q: %s", want, joined)
		}
	}
}

func TestExtractAudioFromVideoNoAudioStream(t *testing.T) {
	r := &fakeRunner{probeOut: ""}
	tools := newTestTools(t, r)

	_, err := tools.ExtractAudioFromVideo(context.Background(), "silent.mp4", filepath.Join(t.TempDir(), "a.wav"), AudioExtractOptions{})
	if !errors.Is(err, ErrNoAudioStream) {
		t.Fatalf("err: want=%v got=%v", ErrNoAudioStream, err)
	}
	if len(r.calls) != 1 {
		t.Fatalf("ffmpeg should not run without audio; calls=%d", len(r.calls))
	}
}

func TestExtractAudioFromVideoToolkitError(t *testing.T) {
	r := &fakeRunner{probeOut: "1", ffmpegErr: errors.New("exit status 1"), stderr: "Invalid data found"}
	tools := newTestTools(t, r)

	_, err := tools.ExtractAudioFromVideo(context.Background(), "bad.mp4", filepath.Join(t.TempDir(), "a.wav"), AudioExtractOptions{})
	if err == nil || !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected toolkit error with stderr, got %v", err)
	}
}

func TestSampleFramesOrderedAndCapped(t *testing.T) {
	r := &fakeRunner{frames: 12}
	tools := newTestTools(t, r)
	dir := filepath.Join(t.TempDir(), "job_frames")

	frames, err := tools.SampleFrames(context.Background(), "in.mp4", dir, FrameSampleOptions{FPS: 1.5, MaxFrames: 10})
	if err != nil {
		t.Fatalf("SampleFrames: %v", err)
	}
	if len(frames) != 10 {
		t.Fatalf("frames: want=10 got=%d", len(frames))
	}
	for i, f := range frames {
		want := fmt.Sprintf("frame_%06d.jpg", i+1)
		if filepath.Base(f) != want {
			t.Fatalf("frame %d: want=%q got=%q", i, want, filepath.Base(f))
		}
	}
	joined := strings.Join(r.calls[0], " ")
	if !strings.Contains(joined, "fps=1.5") {
		t.Fatalf("ffmpeg args missing fps filter: %s", joined)
	}
}

func TestSampleFramesNoneProduced(t *testing.T) {
	tools := newTestTools(t, &fakeRunner{frames: 0})

	_, err := tools.SampleFrames(context.Background(), "in.mp4", filepath.Join(t.TempDir(), "f"), FrameSampleOptions{})
	if !errors.Is(err, ErrNoFrames) {
		t.Fatalf("err: want=%v got=%v", ErrNoFrames, err)
	}
}

func TestAssertReadyMissingBinary(t *testing.T) {
	tools := New(logger.NewNop(), t.TempDir(), WithLookPath(func(name string) (string, error) {
		if name == "ffprobe" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}))
	err := tools.AssertReady(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ffprobe") {
		t.Fatalf("expected missing ffprobe error, got %v", err)
	}
}

func TestListFramesIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame_000002.jpg", "frame_000001.jpg", "notes.txt", "thumb.jpg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	frames, err := ListFrames(dir)
	if err != nil {
		t.Fatalf("ListFrames: %v", err)
	}
	if len(frames) != 2 || filepath.Base(frames[0]) != "frame_000001.jpg" {
		t.Fatalf("frames: got=%v", frames)
	}
}
