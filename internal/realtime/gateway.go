package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pace-quizz/backend/internal/models"
	"github.com/pace-quizz/backend/internal/votes"
)

// SessionLookup resolves join keys to sessions.
type SessionLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	GetByPin(ctx context.Context, pin string) (*models.Session, error)
}

// ParticipantStore creates participants by nickname and looks them up.
type ParticipantStore interface {
	UpsertByNickname(ctx context.Context, sessionID uuid.UUID, nickname *string, avatar string) (*models.Participant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
}

// VoteSubmitter accepts votes.
type VoteSubmitter interface {
	SubmitVote(ctx context.Context, v votes.Vote) (votes.Result, error)
}

// GatewayDeps wires a Gateway. Sessions and Participants may be nil, in which
// case every key is a logical room and participants stay anonymous.
type GatewayDeps struct {
	Hub             *Hub
	Broadcaster     *Broadcaster
	Sessions        SessionLookup
	Participants    ParticipantStore
	Votes           VoteSubmitter
	RequireHostAuth bool
	Logger          *zap.Logger
}

// Gateway maps inbound websocket events to component calls and returns the ack payload.
type Gateway struct {
	GatewayDeps
}

// NewGateway creates a gateway.
func NewGateway(deps GatewayDeps) *Gateway {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Gateway{GatewayDeps: deps}
}

type joinRequest struct {
	SessionID     string `json:"sessionId"`
	Role          Role   `json:"role"`
	Nickname      string `json:"nickname"`
	Avatar        string `json:"avatar"`
	ParticipantID string `json:"participantId"`
}

// JoinAck acknowledges join_session.
type JoinAck struct {
	Status        string     `json:"status"`
	Room          string     `json:"room"`
	ParticipantID *uuid.UUID `json:"participantId,omitempty"`
}

type hostStateRequest struct {
	SessionID  string          `json:"sessionId"`
	QuestionID string          `json:"questionId"`
	Title      string          `json:"title"`
	Type       string          `json:"type"`
	Options    json.RawMessage `json:"options"`
	TimeLimit  *int            `json:"timeLimit"`
	Status     StateStatus     `json:"status"`
}

type voteRequest struct {
	SessionID     string          `json:"sessionId"`
	QuestionID    string          `json:"questionId"`
	ParticipantID string          `json:"participantId"`
	Answer        json.RawMessage `json:"answer"`
	TimeTaken     int             `json:"timeTaken"`
}

// StatusAck is the ack for host_state_update and submit_vote.
type StatusAck struct {
	Status string `json:"status"`
	Count  int64  `json:"count,omitempty"`
}

// Handle processes one inbound message from c.
func (g *Gateway) Handle(ctx context.Context, c *Client, msg WSMessage) (any, error) {
	switch msg.Event {
	case EventJoinSession:
		return g.join(ctx, c, msg.Data)
	case EventHostStateUpdate:
		return g.hostStateUpdate(ctx, c, msg.Data)
	case EventSubmitVote:
		return g.submitVote(ctx, c, msg.Data)
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrBadRequest, msg.Event)
	}
}

func (g *Gateway) join(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var req joinRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: sessionId required", ErrBadRequest)
	}
	if req.Role == "" {
		req.Role = RoleParticipant
	}
	if !req.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrBadRequest, req.Role)
	}

	room, sess, err := g.resolve(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	ack := JoinAck{Status: "joined", Room: room}
	if req.Role == RoleHost {
		if err := g.authorizeHost(c, sess); err != nil {
			return nil, err
		}
	} else {
		pid, err := g.identify(ctx, sess, req)
		if err != nil {
			return nil, err
		}
		if pid != uuid.Nil {
			c.participants[room] = pid
			ack.ParticipantID = &pid
		}
	}

	if sess != nil {
		c.kinds[room] = sess.Kind
	}
	c.rooms[req.SessionID] = room
	g.Hub.Join(room, req.Role, c)

	if _, err := g.Broadcaster.Sync(ctx, room, c); err != nil {
		g.Logger.Warn("sync on join failed", zap.String("room", room), zap.Error(err))
	}
	if req.Role == RoleParticipant {
		notice := JoinNotice{ClientID: c.ID(), ParticipantID: ack.ParticipantID, Nickname: req.Nickname}
		if err := g.Broadcaster.NotifyJoin(ctx, room, notice); err != nil {
			g.Logger.Warn("join notify failed", zap.String("room", room), zap.Error(err))
		}
	}
	return ack, nil
}

// resolve maps a join key to a room. Unknown keys become logical rooms.
func (g *Gateway) resolve(ctx context.Context, key string) (string, *models.Session, error) {
	var (
		sess *models.Session
		err  error
	)
	id, perr := uuid.Parse(key)
	switch {
	case perr == nil:
		key = id.String()
		if g.Sessions == nil {
			return key, nil, nil
		}
		sess, err = g.Sessions.GetByID(ctx, id)
	case isPIN(key) && g.Sessions != nil:
		sess, err = g.Sessions.GetByPin(ctx, key)
	default:
		return key, nil, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return key, nil, nil
	}
	if err != nil {
		return "", nil, fmt.Errorf("resolve session: %w", err)
	}
	return sess.Room(), sess, nil
}

func (g *Gateway) authorizeHost(c *Client, sess *models.Session) error {
	if !g.RequireHostAuth {
		return nil
	}
	if !c.authenticated {
		return fmt.Errorf("%w: host role requires a presenter token", ErrUnauthorized)
	}
	if sess != nil && c.userRole != string(models.RoleAdmin) && sess.HostID != c.userID {
		return fmt.Errorf("%w: not the presenter of this session", ErrUnauthorized)
	}
	return nil
}

func (g *Gateway) identify(ctx context.Context, sess *models.Session, req joinRequest) (uuid.UUID, error) {
	if req.ParticipantID != "" {
		pid, err := uuid.Parse(req.ParticipantID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: invalid participantId", ErrBadRequest)
		}
		if sess != nil {
			if err := g.checkParticipant(ctx, sess.ID, pid); err != nil {
				return uuid.Nil, err
			}
		}
		return pid, nil
	}
	if sess == nil || g.Participants == nil {
		return uuid.Nil, nil
	}
	var nickname *string
	if n := strings.TrimSpace(req.Nickname); n != "" {
		nickname = &n
	}
	p, err := g.Participants.UpsertByNickname(ctx, sess.ID, nickname, req.Avatar)
	if err != nil {
		return uuid.Nil, fmt.Errorf("register participant: %w", err)
	}
	return p.ID, nil
}

func (g *Gateway) hostStateUpdate(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var req hostStateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	room, ok := c.rooms[strings.TrimSpace(req.SessionID)]
	if !ok {
		return nil, fmt.Errorf("%w: join the session first", ErrBadRequest)
	}
	if role, _ := g.Hub.RoleOf(room, c.ID()); role != RoleHost {
		return nil, fmt.Errorf("%w: only hosts can update state", ErrUnauthorized)
	}
	st := State{
		SessionID:  room,
		QuestionID: req.QuestionID,
		Title:      req.Title,
		Type:       req.Type,
		Options:    req.Options,
		TimeLimit:  req.TimeLimit,
		Status:     req.Status,
	}
	if err := g.Broadcaster.PublishState(ctx, room, st); err != nil {
		return nil, err
	}
	return StatusAck{Status: "synced"}, nil
}

func (g *Gateway) submitVote(ctx context.Context, c *Client, data json.RawMessage) (any, error) {
	var req voteRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", votes.ErrInvalidVote, err)
	}
	key := strings.TrimSpace(req.SessionID)
	room, joined := c.rooms[key]
	kind, known := c.kinds[room]
	var sess *models.Session
	if !joined {
		var err error
		if room, sess, err = g.resolve(ctx, key); err != nil {
			return nil, err
		}
		if sess != nil {
			kind, known = sess.Kind, true
		}
	}
	var sessionID uuid.UUID
	if known {
		sessionID, _ = uuid.Parse(room)
	}

	pid := c.participants[room]
	if pid == uuid.Nil && req.ParticipantID != "" {
		if role, _ := g.Hub.RoleOf(room, c.ID()); role != RoleParticipant {
			return nil, fmt.Errorf("%w: participantId is only accepted from participants", ErrUnauthorized)
		}
		var err error
		if pid, err = uuid.Parse(req.ParticipantID); err != nil {
			return nil, fmt.Errorf("%w: invalid participantId", votes.ErrInvalidVote)
		}
		if sessionID != uuid.Nil {
			if err := g.checkParticipant(ctx, sessionID, pid); err != nil {
				return nil, err
			}
		}
	}
	qid, _ := uuid.Parse(req.QuestionID)
	answer, err := models.ParseAnswer(req.Answer)
	if err != nil {
		return nil, fmt.Errorf("%w: answer: %v", votes.ErrInvalidVote, err)
	}

	v := votes.Vote{
		Room:          room,
		ClientID:      c.ID(),
		ParticipantID: pid,
		QuestionID:    qid,
		Answer:        answer,
		TimeTaken:     req.TimeTaken,
		SelfPaced:     kind == models.SessionKindSurvey,
	}
	if v.SelfPaced {
		if sess == nil && g.Sessions != nil {
			if sess, err = g.Sessions.GetByID(ctx, sessionID); err != nil {
				return nil, fmt.Errorf("load session: %w", err)
			}
		}
		v.SessionOpen = sess != nil && sess.Status == models.SessionStatusActive
	}

	res, err := g.Votes.SubmitVote(ctx, v)
	if err != nil {
		return nil, err
	}
	return StatusAck{Status: "vote_recorded", Count: res.Count}, nil
}

// checkParticipant confirms pid was registered in sessionID.
func (g *Gateway) checkParticipant(ctx context.Context, sessionID, pid uuid.UUID) error {
	if g.Participants == nil {
		return nil
	}
	p, err := g.Participants.GetByID(ctx, pid)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: unknown participant", ErrBadRequest)
	}
	if err != nil {
		return fmt.Errorf("load participant: %w", err)
	}
	if p.SessionID != sessionID {
		return fmt.Errorf("%w: participant belongs to another session", ErrBadRequest)
	}
	return nil
}

func isPIN(s string) bool {
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
