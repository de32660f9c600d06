package activitylog

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/pkg/response"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Reader lists recent activity.
type Reader interface {
	ListRecent(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ActivityLog, error)
}

// Handler handles GET /sessions/:id/logs.
type Handler struct {
	logs   Reader
	logger *zap.Logger
}

// NewHandler creates an activity log handler.
func NewHandler(logs Reader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logs: logs, logger: logger}
}

// List returns the most recent entries. ?limit defaults to 20 and is capped at 100.
func (h *Handler) List(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}
	list, err := h.logs.ListRecent(c.Request.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("list activity failed", zap.String("session_id", sessionID.String()), zap.Error(err))
		response.Internal(c, "failed to list activity")
		return
	}
	if list == nil {
		list = []models.ActivityLog{}
	}
	response.OK(c, gin.H{"logs": list})
}
