package questions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/internal/sessions"
	"github.com/pace-quizz/backend/pkg/response"
)

// Store persists questions.
type Store interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Question, error)
	Create(ctx context.Context, q *models.Question) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error)
	Update(ctx context.Context, q *models.Question) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SessionReader looks up the session a question belongs to.
type SessionReader interface {
	sessions.HostChecker
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// Counter returns the live tally of a question.
type Counter interface {
	Counts(ctx context.Context, question uuid.UUID) (map[string]int64, error)
}

// CreateRequest is the body for POST /sessions/:id/questions.
type CreateRequest struct {
	Title     string              `json:"title" binding:"required"`
	Type      models.QuestionType `json:"type" binding:"required"`
	Options   json.RawMessage     `json:"options"`
	Order     *int                `json:"order"`
	TimeLimit *int                `json:"time_limit"`
}

// TallyResponse is the body of GET /questions/:id/tally.
type TallyResponse struct {
	QuestionID uuid.UUID        `json:"questionId"`
	Counts     map[string]int64 `json:"counts"`
}

var (
	errLocked  = errors.New("questions can only be edited before the session starts")
	errInvalid = errors.New("invalid question")
)

// Handler serves question editing and live tallies.
type Handler struct {
	store    Store
	sessions SessionReader
	counter  Counter
	logger   *zap.Logger
}

// NewHandler creates a questions handler.
func NewHandler(store Store, sessions SessionReader, counter Counter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, sessions: sessions, counter: counter, logger: logger}
}

// ListBySession handles GET /sessions/:id/questions.
func (h *Handler) ListBySession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	list, err := h.store.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []models.Question{}
	}
	response.OK(c, gin.H{"questions": list})
}

// Create handles POST /sessions/:id/questions.
func (h *Handler) Create(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.editable(c.Request.Context(), sessionID); err != nil {
		h.fail(c, err)
		return
	}

	q := &models.Question{
		SessionID: sessionID,
		Title:     strings.TrimSpace(req.Title),
		Order:     -1,
		Type:      req.Type,
		Options:   models.NormalizeOptions(req.Options),
		TimeLimit: req.TimeLimit,
	}
	if req.Order != nil {
		q.Order = *req.Order
	}
	if err := validate(q); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.store.Create(c.Request.Context(), q); err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, q)
}

// Update handles PATCH /questions/:id.
func (h *Handler) Update(c *gin.Context) {
	q, ok := h.loadForEdit(c)
	if !ok {
		return
	}
	var p models.QuestionPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p.Apply(q)
	q.Title = strings.TrimSpace(q.Title)
	if err := validate(q); err != nil {
		h.fail(c, err)
		return
	}
	if err := h.store.Update(c.Request.Context(), q); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, q)
}

// Delete handles DELETE /questions/:id.
func (h *Handler) Delete(c *gin.Context) {
	q, ok := h.loadForEdit(c)
	if !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), q.ID); err != nil {
		h.fail(c, err)
		return
	}
	response.NoContent(c)
}

// Tally handles GET /questions/:id/tally.
func (h *Handler) Tally(c *gin.Context) {
	q, ok := h.loadOwned(c)
	if !ok {
		return
	}
	counts, err := h.counter.Counts(c.Request.Context(), q.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, TallyResponse{QuestionID: q.ID, Counts: counts})
}

// loadOwned fetches the :id question and checks the caller hosts its session.
func (h *Handler) loadOwned(c *gin.Context) (*models.Question, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return nil, false
	}
	q, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	if !sessions.AuthorizeHost(c, h.sessions, q.SessionID) {
		return nil, false
	}
	return q, true
}

func (h *Handler) loadForEdit(c *gin.Context) (*models.Question, bool) {
	q, ok := h.loadOwned(c)
	if !ok {
		return nil, false
	}
	if err := h.editable(c.Request.Context(), q.SessionID); err != nil {
		h.fail(c, err)
		return nil, false
	}
	return q, true
}

func (h *Handler) editable(ctx context.Context, sessionID uuid.UUID) error {
	s, err := h.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if s.Status != models.SessionStatusCreated {
		return errLocked
	}
	return nil
}

func validate(q *models.Question) error {
	switch {
	case q.Title == "":
		return fmt.Errorf("%w: title required", errInvalid)
	case q.TimeLimit != nil && *q.TimeLimit < 0:
		return fmt.Errorf("%w: time_limit must not be negative", errInvalid)
	case models.ValidQuestionType(q.Type) && q.Type != models.QuestionTypeWordCloud && len(q.Options) == 0:
		return fmt.Errorf("%w: options required for %s", errInvalid, q.Type)
	}
	return models.ValidateOptions(q.Type, q.Options)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.NotFound(c, "not found")
	case errors.Is(err, errLocked):
		response.Conflict(c, err.Error())
	case errors.Is(err, models.ErrConflict):
		response.Conflict(c, "question order already taken")
	case errors.Is(err, models.ErrInvalidOptions), errors.Is(err, errInvalid):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Error("question request failed", zap.String("path", c.FullPath()), zap.Error(err))
		response.Internal(c, "internal error")
	}
}
