package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/recipe-backend/internal/http/response"
	pkgerrors "github.com/yungbote/recipe-backend/internal/pkg/errors"
	"github.com/yungbote/recipe-backend/internal/services"
)

type RecipeHandler struct {
	recipes services.RecipeService
}

func NewRecipeHandler(recipes services.RecipeService) *RecipeHandler {
	return &RecipeHandler{recipes: recipes}
}

type generateRequest struct {
	FilePath string `json:"filePath"`
	// Data is the callable-function envelope: {"data": {"filePath": ...}}.
	Data *struct {
		FilePath string `json:"filePath"`
	} `json:"data"`
}

// POST /api/recipes/generate
func (h *RecipeHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("request body must be JSON"))
		return
	}
	filePath := req.FilePath
	enveloped := req.Data != nil
	if enveloped {
		filePath = req.Data.FilePath
	}
	if strings.TrimSpace(filePath) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("filePath is required"))
		return
	}

	draft, err := h.recipes.Generate(c.Request.Context(), filePath)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidArgument) {
			response.RespondAPIError(c, err)
			return
		}
		// Callers never see why a job failed.
		_ = c.Error(err)
		response.RespondError(c, http.StatusInternalServerError, "internal", errors.New("recipe generation failed"))
		return
	}
	if enveloped {
		response.RespondOK(c, gin.H{"result": draft})
		return
	}
	response.RespondOK(c, draft)
}
