package responses

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/internal/votes"
	"github.com/pace-quizz/backend/pkg/response"
)

// VoteSubmitter records a vote.
type VoteSubmitter interface {
	SubmitVote(ctx context.Context, v votes.Vote) (votes.Result, error)
}

// Lookups resolves the ids a submission refers to.
type Lookups struct {
	Participants interface {
		GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	}
	Questions interface {
		GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error)
	}
	Sessions interface {
		GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	}
}

// SubmitRequest is the body for POST /responses.
type SubmitRequest struct {
	ParticipantID uuid.UUID       `json:"participantId" binding:"required"`
	QuestionID    uuid.UUID       `json:"questionId" binding:"required"`
	Answer        json.RawMessage `json:"answer" binding:"required"`
	TimeTaken     int             `json:"timeTaken"`
}

// Handler accepts votes over HTTP.
type Handler struct {
	votes  VoteSubmitter
	lookup Lookups
	logger *zap.Logger
}

// NewHandler creates a responses handler.
func NewHandler(v VoteSubmitter, lookup Lookups, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{votes: v, lookup: lookup, logger: logger}
}

// Submit handles POST /responses. Public. Session status is only enforced in
// strict mode.
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.TimeTaken < 0 {
		response.BadRequest(c, "timeTaken must not be negative")
		return
	}
	answer, err := models.ParseAnswer(req.Answer)
	if err != nil {
		response.BadRequest(c, "invalid answer")
		return
	}

	ctx := c.Request.Context()
	p, err := h.lookup.Participants.GetByID(ctx, req.ParticipantID)
	if err != nil {
		h.fail(c, err)
		return
	}
	q, err := h.lookup.Questions.GetByID(ctx, req.QuestionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if q.SessionID != p.SessionID {
		response.BadRequest(c, "question is not part of the participant's session")
		return
	}
	s, err := h.lookup.Sessions.GetByID(ctx, q.SessionID)
	if err != nil {
		h.fail(c, err)
		return
	}

	res, err := h.votes.SubmitVote(ctx, votes.Vote{
		Room:          s.Room(),
		ParticipantID: p.ID,
		QuestionID:    q.ID,
		Answer:        answer,
		TimeTaken:     req.TimeTaken,
		SelfPaced:     s.Kind == models.SessionKindSurvey,
		SessionOpen:   s.Status == models.SessionStatusActive,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, res)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.NotFound(c, "not found")
	case errors.Is(err, votes.ErrInvalidVote):
		response.BadRequest(c, err.Error())
	case errors.Is(err, votes.ErrStaleVote):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("submit response failed", zap.Error(err))
		response.Internal(c, "failed to record response")
	}
}
