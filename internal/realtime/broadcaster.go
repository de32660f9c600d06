package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/internal/votes"
)

// StateStatus is the presentation status carried by state_sync.
type StateStatus string

const (
	StatusWaiting  StateStatus = "WAITING"
	StatusActive   StateStatus = "ACTIVE"
	StatusFinished StateStatus = "FINISHED"
)

// ErrSessionNotActive is returned when publishing a question for a session that is not live.
var ErrSessionNotActive = errors.New("session not active")

// State is the state_sync payload: what every screen in the room should show.
type State struct {
	SessionID  string          `json:"sessionId"`
	QuestionID string          `json:"questionId,omitempty"`
	Title      string          `json:"title,omitempty"`
	Type       string          `json:"type,omitempty"`
	Options    json.RawMessage `json:"options,omitempty"`
	TimeLimit  *int            `json:"timeLimit,omitempty"`
	Status     StateStatus     `json:"status"`
}

// JoinNotice is the participant_joined payload.
type JoinNotice struct {
	ClientID      string     `json:"clientId"`
	ParticipantID *uuid.UUID `json:"participantId,omitempty"`
	Nickname      string     `json:"nickname,omitempty"`
}

// Broadcaster turns session state changes into room events. The last state
// of each room is retained and replayed to endpoints that join later.
type Broadcaster struct {
	hub    *Hub
	logger *zap.Logger
}

// NewBroadcaster creates a broadcaster on hub.
func NewBroadcaster(hub *Hub, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{hub: hub, logger: logger}
}

// PublishQuestion shows q to the whole room of s.
func (b *Broadcaster) PublishQuestion(ctx context.Context, s *models.Session, q *models.Question) error {
	if s.Status != models.SessionStatusActive {
		return fmt.Errorf("%w: session %s is %s", ErrSessionNotActive, s.ID, s.Status)
	}
	return b.PublishState(ctx, s.Room(), State{
		SessionID:  s.ID.String(),
		QuestionID: q.ID.String(),
		Title:      q.Title,
		Type:       string(q.Type),
		Options:    q.Options,
		TimeLimit:  q.TimeLimit,
		Status:     StatusActive,
	})
}

// PublishWaiting tells the room no question is showing.
func (b *Broadcaster) PublishWaiting(ctx context.Context, room string) error {
	return b.PublishState(ctx, room, State{SessionID: room, Status: StatusWaiting})
}

// PublishFinished tells the room the session is over.
func (b *Broadcaster) PublishFinished(ctx context.Context, room string) error {
	return b.PublishState(ctx, room, State{SessionID: room, Status: StatusFinished})
}

// PublishState retains st for room and sends it to every member.
func (b *Broadcaster) PublishState(ctx context.Context, room string, st State) error {
	switch st.Status {
	case StatusWaiting, StatusActive, StatusFinished:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrBadRequest, st.Status)
	}
	if st.SessionID == "" {
		st.SessionID = room
	}
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := b.hub.Retain(ctx, room, EventStateSync, data); err != nil {
		b.logger.Warn("retain state failed", zap.String("room", room), zap.Error(err))
	}
	return b.hub.Broadcast(ctx, room, EventStateSync, "", data)
}

// NotifyJoin tells the room's hosts a participant arrived.
func (b *Broadcaster) NotifyJoin(ctx context.Context, room string, n JoinNotice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return b.hub.Broadcast(ctx, room, EventParticipantJoined, RoleHost, data)
}

// NotifyVote tells the room's hosts a vote was counted.
func (b *Broadcaster) NotifyVote(ctx context.Context, room string, n votes.VoteNotice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return b.hub.Broadcast(ctx, room, EventNewVote, RoleHost, data)
}

// Sync replays the room's retained state to ep. It reports whether anything was
// sent. A client that already received a newer state_sync skips the replay.
func (b *Broadcaster) Sync(ctx context.Context, room string, ep Endpoint) (bool, error) {
	env, err := b.hub.Retained(ctx, room)
	if err != nil || env == nil {
		return false, err
	}
	return ep.Send(WSMessage{Event: env.Event, Data: env.Data, at: env.At, replay: true}), nil
}

// Current returns the room's retained state, or nil.
func (b *Broadcaster) Current(ctx context.Context, room string) (*State, error) {
	env, err := b.hub.Retained(ctx, room)
	if err != nil || env == nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(env.Data, &st); err != nil {
		return nil, fmt.Errorf("decode retained state: %w", err)
	}
	return &st, nil
}

// ActiveQuestion returns the question the room is showing, if any.
func (b *Broadcaster) ActiveQuestion(ctx context.Context, room string) (uuid.UUID, bool, error) {
	st, err := b.Current(ctx, room)
	if err != nil || st == nil || st.Status != StatusActive {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(st.QuestionID)
	if err != nil {
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

// Forget drops the room's retained state.
func (b *Broadcaster) Forget(ctx context.Context, room string) error {
	return b.hub.Forget(ctx, room)
}
