package localmedia

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/recipe-backend/internal/pkg/ctxutil"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

var (
	// ErrNoAudioStream is returned when the container carries no audio track.
	ErrNoAudioStream = errors.New("video has no audio stream")
	// ErrNoFrames is returned when frame sampling produced nothing.
	ErrNoFrames = errors.New("no frames produced")
)

var framePattern = regexp.MustCompile(`^frame_\d+\.(png|jpe?g)$`)

// Tools wraps the ffmpeg and ffprobe binaries used by the recipe pipeline.
//
// REQUIRED BINARIES in the runtime image:
// - ffmpeg for audio demux and frame sampling
// - ffprobe for stream inspection
type Tools interface {
	AssertReady(ctx context.Context) error
	HasAudioStream(ctx context.Context, videoPath string) (bool, error)
	ExtractAudioFromVideo(ctx context.Context, videoPath string, outPath string, opts AudioExtractOptions) (string, error)
	SampleFrames(ctx context.Context, videoPath string, outDir string, opts FrameSampleOptions) ([]string, error)
}

type AudioExtractOptions struct {
	SampleRateHz int
	Channels     int
}

type FrameSampleOptions struct {
	FPS         float64
	Width       int
	MaxFrames   int
	JPEGQuality int
}

// CommandResult is the captured output of one external command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes external commands. Tests swap in a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, err
	}
	return res, nil
}

type Option func(*tools)

func WithRunner(r Runner) Option {
	return func(t *tools) {
		if r != nil {
			t.runner = r
		}
	}
}

func WithLookPath(fn func(string) (string, error)) Option {
	return func(t *tools) {
		if fn != nil {
			t.lookPath = fn
		}
	}
}

func WithBinaries(ffmpeg, ffprobe string) Option {
	return func(t *tools) {
		if strings.TrimSpace(ffmpeg) != "" {
			t.ffmpegPath = ffmpeg
		}
		if strings.TrimSpace(ffprobe) != "" {
			t.ffprobePath = ffprobe
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(t *tools) {
		if d > 0 {
			t.defaultTimeout = d
		}
	}
}

type tools struct {
	log *logger.Logger

	ffmpegPath  string
	ffprobePath string
	workRoot    string

	runner   Runner
	lookPath func(string) (string, error)

	defaultTimeout time.Duration
}

// New returns Tools rooted at workRoot, the scratch directory jobs write into.
func New(log *logger.Logger, workRoot string, opts ...Option) Tools {
	t := &tools{
		log:            log.With("service", "MediaTools"),
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		workRoot:       workRoot,
		runner:         execRunner{},
		lookPath:       exec.LookPath,
		defaultTimeout: 10 * time.Minute,
	}
	if t.workRoot == "" {
		t.workRoot = filepath.Join(os.TempDir(), "recipe-media")
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (m *tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{m.ffmpegPath, m.ffprobePath} {
		if _, err := m.lookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *tools) HasAudioStream(ctx context.Context, videoPath string) (bool, error) {
	ctx = ctxutil.Default(ctx)
	if videoPath == "" {
		return false, fmt.Errorf("videoPath required")
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	res, err := m.runner.Run(ctx, m.ffprobePath,
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=index",
		"-of", "csv=p=0",
		videoPath,
	)
	if err != nil {
		return false, fmt.Errorf("ffprobe failed: %w; out=%s", err, strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout) != "", nil
}

// ExtractAudioFromVideo demuxes the audio track into mono 16-bit linear PCM
// WAV at the requested sample rate.
func (m *tools) ExtractAudioFromVideo(ctx context.Context, videoPath string, outPath string, opts AudioExtractOptions) (string, error) {
	ctx = ctxutil.Default(ctx)
	if videoPath == "" {
		return "", fmt.Errorf("videoPath required")
	}
	if outPath == "" {
		return "", fmt.Errorf("outPath required")
	}
	hasAudio, err := m.HasAudioStream(ctx, videoPath)
	if err != nil {
		return "", err
	}
	if !hasAudio {
		return "", ErrNoAudioStream
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir outPath dir: %w", err)
	}

	sr := opts.SampleRateHz
	if sr <= 0 {
		sr = 16000
	}
	ch := opts.Channels
	if ch <= 0 {
		ch = 1
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	res, err := m.runner.Run(ctx, m.ffmpegPath,
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(ch),
		"-ar", strconv.Itoa(sr),
		"-f", "wav",
		outPath,
	)
	if err != nil {
		if strings.Contains(res.Stderr, "does not contain any stream") {
			return "", ErrNoAudioStream
		}
		return "", fmt.Errorf("ffmpeg extract audio failed: %w; out=%s", err, tail(res.Stderr, 2000))
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("audio output missing at %s", outPath)
	}
	m.log.Debug("Audio extracted", "video", videoPath, "audio", outPath, "sample_rate", sr)
	return outPath, nil
}

// SampleFrames writes frame_%06d.jpg files into outDir at a fixed rate and
// returns them ordered by sequence number.
func (m *tools) SampleFrames(ctx context.Context, videoPath string, outDir string, opts FrameSampleOptions) ([]string, error) {
	ctx = ctxutil.Default(ctx)
	if videoPath == "" {
		return nil, fmt.Errorf("videoPath required")
	}
	if outDir == "" {
		return nil, fmt.Errorf("outDir required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir outDir: %w", err)
	}

	fps := opts.FPS
	if fps <= 0 {
		fps = 1.5
	}
	vf := fmt.Sprintf("fps=%s", strconv.FormatFloat(fps, 'f', -1, 64))
	if opts.Width > 0 {
		vf += fmt.Sprintf(",scale=%d:-2", opts.Width)
	}
	q := opts.JPEGQuality
	if q <= 0 {
		q = 3
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	args := []string{"-y", "-i", videoPath, "-vf", vf, "-q:v", strconv.Itoa(q)}
	if opts.MaxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(opts.MaxFrames))
	}
	args = append(args, filepath.Join(outDir, "frame_%06d.jpg"))

	res, err := m.runner.Run(ctx, m.ffmpegPath, args...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg sample frames failed: %w; out=%s", err, tail(res.Stderr, 2000))
	}

	frames, err := ListFrames(outDir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	if opts.MaxFrames > 0 && len(frames) > opts.MaxFrames {
		frames = frames[:opts.MaxFrames]
	}
	m.log.Debug("Frames sampled", "video", videoPath, "frames", len(frames), "fps", fps)
	return frames, nil
}

// ListFrames returns the frame files in dir sorted by sequence number.
func ListFrames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if framePattern.MatchString(strings.ToLower(e.Name())) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
