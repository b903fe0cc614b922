package pipeline

import (
	"fmt"

	types "github.com/yungbote/recipe-backend/internal/domain"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
)

// scheduleCleanup removes the job's scratch paths in the background. Each
// path is attempted exactly once and failures are only logged.
func (s *service) scheduleCleanup(log *logger.Logger, job types.VideoJob) {
	s.cleanupWG.Add(1)
	go func() {
		defer s.cleanupWG.Done()
		s.cleanup(log, job)
	}()
}

func (s *service) cleanup(log *logger.Logger, job types.VideoJob) {
	failed := 0
	for _, p := range job.ScratchPaths() {
		if err := s.removePath(p); err != nil {
			failed++
			log.Warn("Scratch cleanup failed", "stage", StageCleanup, "path", p, "error", err)
		}
	}
	if failed == 0 {
		log.Debug("Scratch cleaned", "paths", len(job.ScratchPaths()))
	}
}

func (s *service) removePath(p string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic removing %s: %v", p, r)
		}
	}()
	return s.removeAll(p)
}
