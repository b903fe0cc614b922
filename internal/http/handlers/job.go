package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/recipe-backend/internal/domain"
	domainjobs "github.com/yungbote/recipe-backend/internal/domain/jobs"
	"github.com/yungbote/recipe-backend/internal/http/response"
	"github.com/yungbote/recipe-backend/internal/services"
)

// defaultRecheckEvery bounds how long an event stream can miss a terminal
// transition published before its subscription was live.
const defaultRecheckEvery = 5 * time.Second

type JobHandler struct {
	recipes      services.RecipeService
	recheckEvery time.Duration
}

func NewJobHandler(recipes services.RecipeService) *JobHandler {
	return &JobHandler{recipes: recipes, recheckEvery: defaultRecheckEvery}
}

// GET /api/recipe-jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	job, err := h.recipes.GetJob(c.Request.Context(), jobID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /api/recipe-jobs?limit=N
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	jobs, err := h.recipes.ListJobs(c.Request.Context(), limit)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"jobs": jobs})
}

// GET /api/recipe-jobs/:id/events
//
// Streams ledger transitions as server-sent events until the run reaches a
// terminal status or the client goes away.
func (h *JobHandler) JobEvents(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	ctx := c.Request.Context()
	if job, ok := h.terminalJob(ctx, jobID); ok {
		c.SSEvent("job", jobSnapshot(job))
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events := make(chan domain.JobEvent, 16)
	errCh := make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		errCh <- h.recipes.WatchJob(subCtx, jobID, func(ev domain.JobEvent) {
			select {
			case events <- ev:
			case <-subCtx.Done():
			}
		})
	}()

	// The ledger is re-read on a ticker so a run that finished between the
	// first read and the subscription still closes the stream.
	every := h.recheckEvery
	if every <= 0 {
		every = defaultRecheckEvery
	}
	recheck := time.NewTicker(every)
	defer recheck.Stop()

	emit := func(ev domain.JobEvent) bool {
		c.SSEvent("job", ev)
		c.Writer.Flush()
		return ev.Status == domainjobs.StatusSucceeded || ev.Status == domainjobs.StatusFailed
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-recheck.C:
			if job, ok := h.terminalJob(ctx, jobID); ok {
				emit(jobSnapshot(job))
				return
			}
		case err := <-errCh:
			if err != nil && !c.Writer.Written() {
				response.RespondAPIError(c, err)
				return
			}
			// Deliver whatever arrived before the subscription ended.
			for {
				select {
				case ev := <-events:
					if emit(ev) {
						return
					}
				default:
					return
				}
			}
		case ev := <-events:
			if emit(ev) {
				return
			}
		}
	}
}

func (h *JobHandler) terminalJob(ctx context.Context, id uuid.UUID) (*domain.RecipeJobRun, bool) {
	job, err := h.recipes.GetJob(ctx, id)
	if err != nil || job == nil || !job.Terminal() {
		return nil, false
	}
	return job, true
}

func jobSnapshot(job *domain.RecipeJobRun) domain.JobEvent {
	return domain.JobEvent{JobRunID: job.ID.String(), Status: job.Status, Stage: job.Stage, Error: job.Error, At: job.UpdatedAt}
}
