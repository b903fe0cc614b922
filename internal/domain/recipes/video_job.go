package recipes

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// VideoJob holds the scratch layout for one run over a source video. Every
// local file lives under RunDir and the staged audio object carries the run
// id, so concurrent runs never share paths even for the same basename.
type VideoJob struct {
	SourcePath    string
	JobID         string
	RunID         string
	RunDir        string
	VideoFile     string
	FrameDir      string
	AudioFile     string
	TempAudioBlob string
}

// JobKey is the basename of sourcePath without its extension.
func JobKey(sourcePath string) (string, error) {
	src := strings.TrimSpace(sourcePath)
	if src == "" {
		return "", fmt.Errorf("source path is empty")
	}
	base := path.Base(strings.TrimRight(src, "/"))
	id := strings.TrimSuffix(base, path.Ext(base))
	if id == "" || id == "." || id == "/" {
		return "", fmt.Errorf("source path %q has no basename", sourcePath)
	}
	return id, nil
}

// NewVideoJob derives every path for one run of sourcePath.
func NewVideoJob(sourcePath, scratchRoot, tempAudioPrefix, runID string) (VideoJob, error) {
	id, err := JobKey(sourcePath)
	if err != nil {
		return VideoJob{}, err
	}
	runID = strings.TrimSpace(runID)
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return VideoJob{}, fmt.Errorf("invalid run id %q", runID)
	}
	if scratchRoot == "" {
		scratchRoot = filepath.Join(".", "tmp")
	}
	prefix := strings.Trim(tempAudioPrefix, "/")
	if prefix == "" {
		prefix = "temp-audio"
	}
	src := strings.TrimSpace(sourcePath)
	ext := path.Ext(path.Base(strings.TrimRight(src, "/")))
	runDir := filepath.Join(scratchRoot, id+"-"+runID)
	return VideoJob{
		SourcePath:    src,
		JobID:         id,
		RunID:         runID,
		RunDir:        runDir,
		VideoFile:     filepath.Join(runDir, id+ext),
		FrameDir:      filepath.Join(runDir, "frames"),
		AudioFile:     filepath.Join(runDir, id+".wav"),
		TempAudioBlob: prefix + "/" + id + "-" + runID + ".wav",
	}, nil
}

// ScratchPaths lists every local path cleanup must remove, the run
// directory last.
func (j VideoJob) ScratchPaths() []string {
	return []string{j.VideoFile, j.FrameDir, j.AudioFile, j.RunDir}
}
