package handlers

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recipe-backend/internal/http/response"
	pkgerrors "github.com/yungbote/recipe-backend/internal/pkg/errors"
	"github.com/yungbote/recipe-backend/internal/pkg/logger"
	"github.com/yungbote/recipe-backend/internal/services"
)

const eventObjectFinalize = "OBJECT_FINALIZE"

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".m4v": true, ".webm": true, ".mkv": true, ".avi": true,
}

type StorageEventConfig struct {
	Bucket        string
	TriggerPrefix string
}

// StorageEventHandler receives GCS object notifications pushed by Pub/Sub.
type StorageEventHandler struct {
	log     *logger.Logger
	recipes services.RecipeService
	cfg     StorageEventConfig
}

func NewStorageEventHandler(log *logger.Logger, recipes services.RecipeService, cfg StorageEventConfig) *StorageEventHandler {
	cfg.TriggerPrefix = strings.TrimPrefix(cfg.TriggerPrefix, "/")
	return &StorageEventHandler{
		log:     log.With("handler", "StorageEventHandler"),
		recipes: recipes,
		cfg:     cfg,
	}
}

type pubsubPush struct {
	Message struct {
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// POST /api/events/storage
func (h *StorageEventHandler) Handle(c *gin.Context) {
	var push pubsubPush
	if err := c.ShouldBindJSON(&push); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("malformed push message"))
		return
	}
	attrs := push.Message.Attributes
	objectID := attrs["objectId"]
	if reason := h.skipReason(attrs["eventType"], attrs["bucketId"], objectID); reason != "" {
		h.log.Debug("Ignoring storage event", "message_id", push.Message.MessageID, "object", objectID, "reason", reason)
		// Acknowledge so Pub/Sub does not redeliver.
		c.Status(http.StatusNoContent)
		return
	}

	run, err := h.recipes.Enqueue(c.Request.Context(), objectID)
	if errors.Is(err, pkgerrors.ErrInvalidArgument) {
		h.log.Warn("Rejected storage object", "object", objectID, "error", err)
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		// Non-2xx makes Pub/Sub redeliver later.
		response.RespondAPIError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_run_id": run.ID})
}

func (h *StorageEventHandler) skipReason(eventType, bucket, objectID string) string {
	switch {
	case eventType != eventObjectFinalize:
		return "event_type"
	case h.cfg.Bucket != "" && bucket != h.cfg.Bucket:
		return "bucket"
	case objectID == "":
		return "object"
	case !strings.HasPrefix(objectID, h.cfg.TriggerPrefix):
		return "prefix"
	case !videoExtensions[strings.ToLower(path.Ext(objectID))]:
		return "extension"
	}
	return ""
}
