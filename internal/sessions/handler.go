package sessions

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pace-quizz/backend/internal/middleware"
	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/pkg/response"
)

// CreateRequest is the body for POST /sessions.
type CreateRequest struct {
	Name string             `json:"name" binding:"required"`
	Type models.SessionKind `json:"type"`
}

// Handler serves the session lifecycle over HTTP.
type Handler struct {
	ctrl   *Controller
	logger *zap.Logger
}

// NewHandler creates a sessions handler.
func NewHandler(ctrl *Controller, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ctrl: ctrl, logger: logger}
}

// Create handles POST /sessions.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, _, _ := middleware.User(c)
	s, err := h.ctrl.Create(c.Request.Context(), req.Name, userID, req.Type)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, s)
}

// ListMine handles GET /sessions/my.
func (h *Handler) ListMine(c *gin.Context) {
	userID, _, _ := middleware.User(c)
	list, err := h.ctrl.ListByHost(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []models.Session{}
	}
	response.OK(c, gin.H{"sessions": list})
}

// ListAll handles GET /sessions. Admin only.
func (h *Handler) ListAll(c *gin.Context) {
	list, err := h.ctrl.ListAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []models.Session{}
	}
	response.OK(c, gin.H{"sessions": list})
}

// Get handles GET /sessions/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	s, err := h.ctrl.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, s)
}

// GetByPin handles GET /sessions/pin/:pin. Public.
func (h *Handler) GetByPin(c *gin.Context) {
	s, err := h.ctrl.GetByPin(c.Request.Context(), c.Param("pin"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, s)
}

// Update handles PATCH /sessions/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	var p models.SessionPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := h.ctrl.Update(c.Request.Context(), id, p)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, s)
}

// Delete handles DELETE /sessions/:id.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if err := h.ctrl.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// Start handles POST /sessions/:id/start.
func (h *Handler) Start(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	res, err := h.ctrl.Start(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

// End handles POST /sessions/:id/end.
func (h *Handler) End(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	s, err := h.ctrl.End(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, s)
}

// Reset handles POST /sessions/:id/reset.
func (h *Handler) Reset(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	res, err := h.ctrl.Reset(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

// ActivateQuestion handles POST /sessions/:id/questions/:questionId/activate.
func (h *Handler) ActivateQuestion(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	questionID, err := uuid.Parse(c.Param("questionId"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	q, err := h.ctrl.NextQuestion(c.Request.Context(), id, questionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, q)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "session not found")
	case errors.Is(err, ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(c, err.Error())
	case errors.Is(err, ErrPinExhausted):
		response.ServiceUnavailable(c, "no free pin, try again")
	default:
		h.logger.Error("session request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}
