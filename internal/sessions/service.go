package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pace-quizz/backend/internal/models"
)

var (
	// ErrNotFound is returned for unknown session or question ids.
	ErrNotFound = models.ErrNotFound
	// ErrInvalidTransition is returned for lifecycle moves the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrPinExhausted is returned when no free PIN was found.
	ErrPinExhausted = errors.New("could not allocate a free pin")
	// ErrInvalidInput marks rejected create or update payloads.
	ErrInvalidInput = errors.New("invalid input")
)

// Store persists sessions. UpdateStatus only applies when the current status
// is one of from (any status when from is empty) and reports whether it did.
type Store interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetByPin(ctx context.Context, pin string) (*models.Session, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to models.SessionStatus, from ...models.SessionStatus) (bool, error)
	UpdatePin(ctx context.Context, id uuid.UUID, pin string) error
	PinInUse(ctx context.Context, pin string, exclude uuid.UUID) (bool, error)
	ListByHost(ctx context.Context, hostID uuid.UUID) ([]models.Session, error)
	ListAll(ctx context.Context) ([]models.Session, error)
	Update(ctx context.Context, id uuid.UUID, p models.SessionPatch) (*models.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	IsHost(ctx context.Context, sessionID, userID uuid.UUID) (bool, error)
}

type QuestionStore interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Question, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error)
}

type ParticipantStore interface {
	DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

type ResponseStore interface {
	DeleteAllForQuestions(ctx context.Context, questionIDs []uuid.UUID) (int64, error)
}

type ActivityLog interface {
	Append(ctx context.Context, sessionID uuid.UUID, action models.ActivityAction, details any) error
}

// Broadcaster pushes lifecycle changes to the session's room.
type Broadcaster interface {
	PublishQuestion(ctx context.Context, s *models.Session, q *models.Question) error
	PublishWaiting(ctx context.Context, room string) error
	PublishFinished(ctx context.Context, room string) error
	Forget(ctx context.Context, room string) error
}

// TallyClearer drops live counts.
type TallyClearer interface {
	Clear(questions ...uuid.UUID)
}

// ExportQueue schedules a results export for a finished session.
type ExportQueue interface {
	EnqueueResultsExport(ctx context.Context, sessionID uuid.UUID) error
}

// Deps wires a Controller. Exports and Pins are optional.
type Deps struct {
	Sessions     Store
	Questions    QuestionStore
	Participants ParticipantStore
	Responses    ResponseStore
	Logs         ActivityLog
	Broadcaster  Broadcaster
	Tally        TallyClearer
	Exports      ExportQueue
	Pins         PinGenerator
	Logger       *zap.Logger
}

// Controller owns the session state machine:
// CREATED -> ACTIVE -> FINISHED, and any state -> CREATED through Reset.
type Controller struct {
	d Deps
}

// NewController creates a controller.
func NewController(d Deps) *Controller {
	if d.Pins == nil {
		d.Pins = RandomPin
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Controller{d: d}
}

// StartResult is returned by Start.
type StartResult struct {
	Session   *models.Session `json:"session"`
	Questions int             `json:"questions"`
}

// ResetResult is returned by Reset and recorded in the activity log.
type ResetResult struct {
	QuestionsReset      int   `json:"questionsReset"`
	ResponsesDeleted    int64 `json:"responsesDeleted"`
	ParticipantsDeleted int64 `json:"participantsDeleted"`
	PinChanged          bool  `json:"pinChanged,omitempty"`
}

// Create makes a CREATED session with a PIN unique among live sessions.
func (c *Controller) Create(ctx context.Context, name string, hostID uuid.UUID, kind models.SessionKind) (*models.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if kind == "" {
		kind = models.SessionKindLive
	}
	if !models.ValidKind(kind) {
		return nil, fmt.Errorf("%w: unknown session type %q", ErrInvalidInput, kind)
	}

	for attempt := 0; attempt < maxPinAttempts; attempt++ {
		pin := c.d.Pins()
		inUse, err := c.d.Sessions.PinInUse(ctx, pin, uuid.Nil)
		if err != nil {
			return nil, fmt.Errorf("check pin: %w", err)
		}
		if inUse {
			continue
		}
		s := &models.Session{Name: name, PIN: pin, Kind: kind, Status: models.SessionStatusCreated, HostID: hostID}
		err = c.d.Sessions.Create(ctx, s)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		c.d.Logger.Info("session created", zap.String("session_id", s.ID.String()), zap.String("pin", s.PIN))
		return s, nil
	}
	return nil, ErrPinExhausted
}

// Get returns a session by id.
func (c *Controller) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return c.d.Sessions.GetByID(ctx, id)
}

// GetByPin returns the session a PIN currently points at.
func (c *Controller) GetByPin(ctx context.Context, pin string) (*models.Session, error) {
	return c.d.Sessions.GetByPin(ctx, pin)
}

// ListByHost returns a presenter's sessions, newest first.
func (c *Controller) ListByHost(ctx context.Context, hostID uuid.UUID) ([]models.Session, error) {
	return c.d.Sessions.ListByHost(ctx, hostID)
}

// ListAll returns every session, newest first.
func (c *Controller) ListAll(ctx context.Context) ([]models.Session, error) {
	return c.d.Sessions.ListAll(ctx)
}

// Update edits the presentation fields of a session.
func (c *Controller) Update(ctx context.Context, id uuid.UUID, p models.SessionPatch) (*models.Session, error) {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return nil, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
	}
	return c.d.Sessions.Update(ctx, id, p)
}

// Delete removes a session with its questions and results.
func (c *Controller) Delete(ctx context.Context, id uuid.UUID) error {
	qs, err := c.d.Questions.ListBySession(ctx, id)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if err := c.d.Sessions.Delete(ctx, id); err != nil {
		return err
	}
	c.d.Tally.Clear(questionIDs(qs)...)
	if err := c.d.Broadcaster.Forget(ctx, id.String()); err != nil {
		c.d.Logger.Warn("forget room state failed", zap.String("session_id", id.String()), zap.Error(err))
	}
	return nil
}

// Start moves CREATED to ACTIVE and shows the first question. Starting an
// ACTIVE session does nothing.
func (c *Controller) Start(ctx context.Context, id uuid.UUID) (*StartResult, error) {
	s, err := c.d.Sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	qs, err := c.d.Questions.ListBySession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	switch s.Status {
	case models.SessionStatusActive:
		return &StartResult{Session: s, Questions: len(qs)}, nil
	case models.SessionStatusFinished:
		return nil, fmt.Errorf("%w: session %s is finished", ErrInvalidTransition, id)
	}

	ok, err := c.d.Sessions.UpdateStatus(ctx, id, models.SessionStatusActive, models.SessionStatusCreated)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if !ok {
		// lost a race; report whatever the winner left
		return c.settled(ctx, id, models.SessionStatusActive, len(qs))
	}
	s.Status = models.SessionStatusActive

	c.appendLog(ctx, id, models.ActionSessionStarted, map[string]int{"questions": len(qs)})
	if len(qs) > 0 {
		err = c.d.Broadcaster.PublishQuestion(ctx, s, &qs[0])
	} else {
		err = c.d.Broadcaster.PublishWaiting(ctx, s.Room())
	}
	c.warnBroadcast(id, err)

	c.d.Logger.Info("session started", zap.String("session_id", id.String()), zap.Int("questions", len(qs)))
	return &StartResult{Session: s, Questions: len(qs)}, nil
}

// End moves ACTIVE to FINISHED. Ending a FINISHED session does nothing.
func (c *Controller) End(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := c.d.Sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch s.Status {
	case models.SessionStatusFinished:
		return s, nil
	case models.SessionStatusCreated:
		return nil, fmt.Errorf("%w: session %s has not started", ErrInvalidTransition, id)
	}

	ok, err := c.d.Sessions.UpdateStatus(ctx, id, models.SessionStatusFinished, models.SessionStatusActive)
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	if !ok {
		res, err := c.settled(ctx, id, models.SessionStatusFinished, 0)
		if err != nil {
			return nil, err
		}
		return res.Session, nil
	}
	s.Status = models.SessionStatusFinished

	c.appendLog(ctx, id, models.ActionSessionEnded, map[string]string{"pin": s.PIN})
	c.warnBroadcast(id, c.d.Broadcaster.PublishFinished(ctx, s.Room()))

	if c.d.Exports != nil {
		if err := c.d.Exports.EnqueueResultsExport(ctx, id); err != nil {
			c.d.Logger.Warn("enqueue results export failed", zap.String("session_id", id.String()), zap.Error(err))
		}
	}
	c.d.Logger.Info("session ended", zap.String("session_id", id.String()))
	return s, nil
}

// Reset wipes a session's participants and responses and returns it to
// CREATED. Resetting twice leaves the same state.
func (c *Controller) Reset(ctx context.Context, id uuid.UUID) (*ResetResult, error) {
	s, err := c.d.Sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	qs, err := c.d.Questions.ListBySession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	ids := questionIDs(qs)
	res := &ResetResult{QuestionsReset: len(qs)}

	if len(ids) > 0 {
		if res.ResponsesDeleted, err = c.d.Responses.DeleteAllForQuestions(ctx, ids); err != nil {
			return nil, fmt.Errorf("delete responses: %w", err)
		}
	}
	if res.ParticipantsDeleted, err = c.d.Participants.DeleteBySession(ctx, id); err != nil {
		return nil, fmt.Errorf("delete participants: %w", err)
	}

	// A finished session's PIN may have been handed to another session since.
	if s.Status == models.SessionStatusFinished {
		inUse, err := c.d.Sessions.PinInUse(ctx, s.PIN, id)
		if err != nil {
			return nil, fmt.Errorf("check pin: %w", err)
		}
		if inUse {
			pin, err := c.freePin(ctx, id)
			if err != nil {
				return nil, err
			}
			s.PIN = pin
			res.PinChanged = true
		}
	}

	if _, err := c.d.Sessions.UpdateStatus(ctx, id, models.SessionStatusCreated); err != nil {
		return nil, fmt.Errorf("reset status: %w", err)
	}

	c.appendLog(ctx, id, models.ActionResultsReset, res)
	c.d.Tally.Clear(ids...)
	if err := c.d.Broadcaster.Forget(ctx, s.Room()); err != nil {
		c.d.Logger.Warn("forget room state failed", zap.String("session_id", id.String()), zap.Error(err))
	}
	c.warnBroadcast(id, c.d.Broadcaster.PublishWaiting(ctx, s.Room()))

	c.d.Logger.Info("session reset",
		zap.String("session_id", id.String()),
		zap.Int64("responses_deleted", res.ResponsesDeleted),
		zap.Int64("participants_deleted", res.ParticipantsDeleted))
	return res, nil
}

// NextQuestion shows one of the session's questions to the room.
func (c *Controller) NextQuestion(ctx context.Context, id, questionID uuid.UUID) (*models.Question, error) {
	s, err := c.d.Sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != models.SessionStatusActive {
		return nil, fmt.Errorf("%w: session %s is %s", ErrInvalidTransition, id, s.Status)
	}
	q, err := c.d.Questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q.SessionID != id {
		return nil, fmt.Errorf("question %s in session %s: %w", questionID, id, ErrNotFound)
	}
	if err := c.d.Broadcaster.PublishQuestion(ctx, s, q); err != nil {
		return nil, fmt.Errorf("publish question: %w", err)
	}
	return q, nil
}

// settled resolves a lost compare-and-set: success when the session already
// reached want, invalid transition otherwise.
func (c *Controller) settled(ctx context.Context, id uuid.UUID, want models.SessionStatus, questions int) (*StartResult, error) {
	s, err := c.d.Sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != want {
		return nil, fmt.Errorf("%w: session %s is %s", ErrInvalidTransition, id, s.Status)
	}
	return &StartResult{Session: s, Questions: questions}, nil
}

func (c *Controller) freePin(ctx context.Context, id uuid.UUID) (string, error) {
	for attempt := 0; attempt < maxPinAttempts; attempt++ {
		pin := c.d.Pins()
		inUse, err := c.d.Sessions.PinInUse(ctx, pin, id)
		if err != nil {
			return "", fmt.Errorf("check pin: %w", err)
		}
		if inUse {
			continue
		}
		err = c.d.Sessions.UpdatePin(ctx, id, pin)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("update pin: %w", err)
		}
		return pin, nil
	}
	return "", ErrPinExhausted
}

func (c *Controller) appendLog(ctx context.Context, id uuid.UUID, action models.ActivityAction, details any) {
	if err := c.d.Logs.Append(ctx, id, action, details); err != nil {
		c.d.Logger.Error("activity log append failed",
			zap.String("session_id", id.String()),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

func (c *Controller) warnBroadcast(id uuid.UUID, err error) {
	if err != nil {
		c.d.Logger.Warn("state broadcast failed", zap.String("session_id", id.String()), zap.Error(err))
	}
}

func questionIDs(qs []models.Question) []uuid.UUID {
	ids := make([]uuid.UUID, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}
