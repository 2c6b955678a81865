package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/salesplan/backend/internal/application/assistant"
	"github.com/salesplan/backend/internal/interfaces/http/dto"
)

// AssistantHandler answers natural-language questions about the sales plan
type AssistantHandler struct {
	BaseHandler
	service *assistant.Service
}

// NewAssistantHandler creates a new AssistantHandler
func NewAssistantHandler(service *assistant.Service) *AssistantHandler {
	return &AssistantHandler{service: service}
}

// AskResponse is the answer to one question
type AskResponse struct {
	*assistant.AskResult
	ElapsedMS int64 `json:"elapsed_ms"`
}

// Ask turns a question into guarded SQL and returns its rows
// POST /assistant/ask
func (h *AssistantHandler) Ask(c *gin.Context) {
	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	result, err := h.service.Ask(c.Request.Context(), req.Question)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.SuccessWithMeta(c, AskResponse{
		AskResult: result,
		ElapsedMS: result.Elapsed.Milliseconds(),
	}, dto.Meta{
		Count:     len(result.Rows),
		Limit:     h.service.MaxRows(),
		Truncated: result.Truncated,
	})
}

// Check repairs and validates a statement without running it
// POST /assistant/check
func (h *AssistantHandler) Check(c *gin.Context) {
	var req dto.CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	result, err := h.service.Check(req.SQL)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
