package participants

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/internal/realtime"
	"github.com/pace-quizz/backend/pkg/response"
)

const maxNicknameLen = 32

// Store persists participants.
type Store interface {
	UpsertByNickname(ctx context.Context, sessionID uuid.UUID, nickname *string, avatar string) (*models.Participant, error)
}

// SessionFinder resolves a PIN to its session.
type SessionFinder interface {
	GetByPin(ctx context.Context, pin string) (*models.Session, error)
}

// QuestionLister lists a session's questions.
type QuestionLister interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Question, error)
}

// JoinNotifier tells hosts a participant arrived.
type JoinNotifier interface {
	NotifyJoin(ctx context.Context, room string, n realtime.JoinNotice) error
}

// JoinRequest is the body for POST /sessions/pin/:pin/join.
type JoinRequest struct {
	Nickname *string `json:"nickname"`
	Avatar   string  `json:"avatar"`
}

// JoinResponse is returned on a successful join. Questions are only
// included for self-paced sessions.
type JoinResponse struct {
	Participant *models.Participant `json:"participant"`
	Session     *models.Session     `json:"session"`
	Questions   []models.Question   `json:"questions,omitempty"`
}

// Handler lets audience members join a session by PIN.
type Handler struct {
	store     Store
	sessions  SessionFinder
	questions QuestionLister
	notifier  JoinNotifier
	logger    *zap.Logger
}

// NewHandler creates a participants handler. notifier may be nil.
func NewHandler(store Store, sessions SessionFinder, questions QuestionLister, notifier JoinNotifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, sessions: sessions, questions: questions, notifier: notifier, logger: logger}
}

// Join handles POST /sessions/pin/:pin/join. Public.
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Nickname != nil {
		nick := strings.TrimSpace(*req.Nickname)
		if len([]rune(nick)) > maxNicknameLen {
			response.BadRequest(c, "nickname too long")
			return
		}
		req.Nickname = &nick
		if nick == "" {
			req.Nickname = nil
		}
	}

	ctx := c.Request.Context()
	s, err := h.sessions.GetByPin(ctx, c.Param("pin"))
	if errors.Is(err, models.ErrNotFound) {
		response.NotFound(c, "session not found")
		return
	}
	if err != nil {
		h.logger.Error("resolve pin failed", zap.Error(err))
		response.Internal(c, "internal error")
		return
	}
	if s.Status == models.SessionStatusFinished {
		response.Conflict(c, "session has ended")
		return
	}

	p, err := h.store.UpsertByNickname(ctx, s.ID, req.Nickname, req.Avatar)
	if err != nil {
		h.logger.Error("upsert participant failed", zap.String("session_id", s.ID.String()), zap.Error(err))
		response.Internal(c, "failed to join session")
		return
	}

	out := JoinResponse{Participant: p, Session: s}
	if s.Kind == models.SessionKindSurvey {
		if out.Questions, err = h.questions.ListBySession(ctx, s.ID); err != nil {
			h.logger.Error("list questions failed", zap.String("session_id", s.ID.String()), zap.Error(err))
			response.Internal(c, "failed to load questions")
			return
		}
	}

	if h.notifier != nil {
		notice := realtime.JoinNotice{ParticipantID: &p.ID, Nickname: p.DisplayName()}
		if err := h.notifier.NotifyJoin(ctx, s.Room(), notice); err != nil {
			h.logger.Warn("join notify failed", zap.String("session_id", s.ID.String()), zap.Error(err))
		}
	}
	response.OK(c, out)
}
