package results

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/pkg/response"
)

// Handler handles GET /sessions/:id/results.
type Handler struct {
	src    Source
	logger *zap.Logger
}

// NewHandler creates a results handler.
func NewHandler(src Source, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{src: src, logger: logger}
}

// Get returns per-question counts and the leaderboard.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	res, err := h.src.ForSession(c.Request.Context(), id)
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("compute results failed", zap.String("session_id", id.String()), zap.Error(err))
		response.Internal(c, "failed to compute results")
		return
	}
	response.OK(c, res)
}
