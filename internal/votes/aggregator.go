package votes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pace-quizz/backend/internal/models"
)

var (
	// ErrInvalidVote marks votes missing a participant, question or answer.
	ErrInvalidVote = errors.New("invalid vote")
	// ErrStaleVote marks votes for a question that is not the room's active one.
	ErrStaleVote = errors.New("stale vote")
)

// Mode selects how votes are checked against the room's live state.
type Mode string

const (
	// ModePermissive trusts the client's question id.
	ModePermissive Mode = "permissive"
	// ModeStrict only accepts votes for the room's active question.
	ModeStrict Mode = "strict"
)

// ResponseStore persists one response per (participant, question).
type ResponseStore interface {
	Upsert(ctx context.Context, participantID, questionID uuid.UUID, answer json.RawMessage, timeTaken int) (*models.Response, error)
	CountByOption(ctx context.Context, questionID uuid.UUID) (map[string]int64, error)
}

// Notifier pushes accepted votes to the room's hosts.
type Notifier interface {
	NotifyVote(ctx context.Context, room string, n VoteNotice) error
}

// StateReader reports the question a room is currently showing.
type StateReader interface {
	ActiveQuestion(ctx context.Context, room string) (uuid.UUID, bool, error)
}

// Vote is one submission from a participant.
type Vote struct {
	Room          string
	ClientID      string
	ParticipantID uuid.UUID
	QuestionID    uuid.UUID
	Answer        models.Answer
	TimeTaken     int // milliseconds
	// SelfPaced votes come from SURVEY sessions, which have no active question.
	SelfPaced bool
	// SessionOpen reports the session is ACTIVE. Strict mode requires it for self-paced votes.
	SessionOpen bool
}

// VoteNotice is what hosts receive for each accepted vote.
type VoteNotice struct {
	ClientID      string          `json:"clientId,omitempty"`
	ParticipantID uuid.UUID       `json:"participantId"`
	QuestionID    uuid.UUID       `json:"questionId"`
	Answer        json.RawMessage `json:"answer"`
	Count         int64           `json:"count"`
}

// Result is returned for an accepted vote.
type Result struct {
	Key      string           `json:"key"`
	Count    int64            `json:"count"`
	Response *models.Response `json:"response,omitempty"`
}

// Aggregator validates, persists and counts votes.
type Aggregator struct {
	store    ResponseStore
	tally    *Tally
	notifier Notifier
	state    StateReader
	mode     Mode
	logger   *zap.Logger
}

// NewAggregator returns a permissive aggregator. notifier may be nil.
func NewAggregator(store ResponseStore, tally *Tally, notifier Notifier, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tally == nil {
		tally = NewTally()
	}
	return &Aggregator{store: store, tally: tally, notifier: notifier, mode: ModePermissive, logger: logger}
}

// UseStrictValidation switches to strict mode, checking votes against state.
func (a *Aggregator) UseStrictValidation(state StateReader) {
	a.state = state
	a.mode = ModeStrict
}

// Mode returns the active validation mode.
func (a *Aggregator) Mode() Mode { return a.mode }

// Tally returns the live tally.
func (a *Aggregator) Tally() *Tally { return a.tally }

// SubmitVote stores the vote, then counts it and notifies hosts. A store
// failure leaves the tally untouched. A notify failure does not fail the vote.
func (a *Aggregator) SubmitVote(ctx context.Context, v Vote) (Result, error) {
	key, err := validate(v)
	if err != nil {
		return Result{}, err
	}

	if a.mode == ModeStrict {
		if err := a.checkCurrent(ctx, v); err != nil {
			return Result{}, err
		}
	}

	answer, err := json.Marshal(v.Answer)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidVote, err)
	}
	resp, err := a.store.Upsert(ctx, v.ParticipantID, v.QuestionID, answer, v.TimeTaken)
	if err != nil {
		return Result{}, fmt.Errorf("store response: %w", err)
	}

	count := a.tally.Increment(v.QuestionID, key)

	if a.notifier != nil && v.Room != "" {
		notice := VoteNotice{
			ClientID:      v.ClientID,
			ParticipantID: v.ParticipantID,
			QuestionID:    v.QuestionID,
			Answer:        answer,
			Count:         count,
		}
		if err := a.notifier.NotifyVote(ctx, v.Room, notice); err != nil {
			a.logger.Warn("vote notify failed",
				zap.String("room", v.Room),
				zap.String("question_id", v.QuestionID.String()),
				zap.Error(err))
		}
	}
	return Result{Key: key, Count: count, Response: resp}, nil
}

// checkCurrent rejects votes the room has moved past. Self-paced votes only
// need an open session.
func (a *Aggregator) checkCurrent(ctx context.Context, v Vote) error {
	if v.SelfPaced {
		if !v.SessionOpen {
			return fmt.Errorf("%w: session is not accepting answers", ErrStaleVote)
		}
		return nil
	}
	if a.state == nil {
		return nil
	}
	active, ok, err := a.state.ActiveQuestion(ctx, v.Room)
	if err != nil {
		return fmt.Errorf("read room state: %w", err)
	}
	if !ok || active != v.QuestionID {
		return fmt.Errorf("%w: question %s is not active", ErrStaleVote, v.QuestionID)
	}
	return nil
}

// Rebuild reloads the tally of question from stored responses.
func (a *Aggregator) Rebuild(ctx context.Context, question uuid.UUID) (map[string]int64, error) {
	counts, err := a.store.CountByOption(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("count responses: %w", err)
	}
	a.tally.Replace(question, counts)
	return a.tally.Snapshot(question), nil
}

// Counts returns the live tally of question, rebuilding it when there is none.
func (a *Aggregator) Counts(ctx context.Context, question uuid.UUID) (map[string]int64, error) {
	if a.tally.Has(question) {
		return a.tally.Snapshot(question), nil
	}
	return a.Rebuild(ctx, question)
}

func validate(v Vote) (string, error) {
	if v.ParticipantID == uuid.Nil {
		return "", fmt.Errorf("%w: participant required", ErrInvalidVote)
	}
	if v.QuestionID == uuid.Nil {
		return "", fmt.Errorf("%w: question required", ErrInvalidVote)
	}
	key := v.Answer.TallyKey()
	if key == "" {
		return "", fmt.Errorf("%w: answer required", ErrInvalidVote)
	}
	return key, nil
}
