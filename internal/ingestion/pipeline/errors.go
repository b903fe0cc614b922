package pipeline

import (
	"errors"
	"fmt"
)

type Stage string

const (
	StageIngest    Stage = "ingest"
	StageExtract   Stage = "extract"
	StageAudio     Stage = "audio"
	StageFrames    Stage = "frames"
	StageSynthesis Stage = "synthesis"
	StageCleanup   Stage = "cleanup"
)

var (
	// ErrInvalidSource rejects a request before any work starts.
	ErrInvalidSource = errors.New("invalid source path")
	// ErrSourceNotFound means the source object does not exist. It is not
	// retried.
	ErrSourceNotFound = errors.New("source video not found")
	// ErrNoSpeechResults means the recognizer returned zero result segments.
	ErrNoSpeechResults = errors.New("speech recognition returned no results")
	// ErrAllFramesFailed means no frame produced a caption.
	ErrAllFramesFailed = errors.New("every frame caption failed")
)

// StageError records which stage of a run failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// FailedStage returns the stage recorded on err, or "" when there is none.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
