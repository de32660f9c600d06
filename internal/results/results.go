// Package results summarises a session's stored responses.
package results

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pace-quizz/backend/internal/models"
)

// pointsPerCorrect is the score of one correct answer before the time penalty.
const pointsPerCorrect = 1000

// QuestionResult is the answer distribution of one question.
type QuestionResult struct {
	QuestionID uuid.UUID           `json:"questionId"`
	Title      string              `json:"title"`
	Type       models.QuestionType `json:"type"`
	Order      int                 `json:"order"`
	Total      int                 `json:"total"`
	Counts     map[string]int64    `json:"counts"`
}

// Entry is one participant's leaderboard row.
type Entry struct {
	ParticipantID  uuid.UUID `json:"participantId"`
	Nickname       string    `json:"nickname"`
	CorrectAnswers int       `json:"correctAnswers"`
	TotalTimeTaken int       `json:"totalTimeTaken"`
	Score          int       `json:"score"`
}

// Results is the full summary of a session.
type Results struct {
	SessionID    uuid.UUID        `json:"sessionId"`
	SessionName  string           `json:"sessionName"`
	Status       string           `json:"status"`
	Participants int              `json:"participants"`
	Questions    []QuestionResult `json:"questions"`
	Leaderboard  []Entry          `json:"leaderboard"`
	GeneratedAt  time.Time        `json:"generatedAt"`
}

// Score is correct*1000 minus the total answer time in tenths of a second, rounded.
func Score(correct, totalTimeTaken int) int {
	return correct*pointsPerCorrect - int(math.Round(float64(totalTimeTaken)/100))
}

// Compute builds the summary. Responses to questions outside qs are ignored.
func Compute(s *models.Session, qs []models.Question, ps []models.Participant, rs []models.Response) *Results {
	out := &Results{
		SessionID:    s.ID,
		SessionName:  s.Name,
		Status:       string(s.Status),
		Participants: len(ps),
		Questions:    make([]QuestionResult, len(qs)),
		Leaderboard:  make([]Entry, 0, len(ps)),
		GeneratedAt:  time.Now().UTC(),
	}

	byQuestion := make(map[uuid.UUID]int, len(qs))
	for i, q := range qs {
		byQuestion[q.ID] = i
		out.Questions[i] = QuestionResult{QuestionID: q.ID, Title: q.Title, Type: q.Type, Order: q.Order, Counts: map[string]int64{}}
	}

	entries := make(map[uuid.UUID]*Entry, len(ps))
	for _, p := range ps {
		entries[p.ID] = &Entry{ParticipantID: p.ID, Nickname: p.DisplayName()}
	}

	for _, r := range rs {
		i, ok := byQuestion[r.QuestionID]
		if !ok {
			continue
		}
		a, err := models.ParseAnswer(r.Answer)
		if err != nil {
			continue
		}
		qr := &out.Questions[i]
		qr.Total++
		if key := a.TallyKey(); key != "" {
			qr.Counts[key]++
		}

		e, ok := entries[r.ParticipantID]
		if !ok {
			continue
		}
		e.TotalTimeTaken += r.TimeTaken
		if qs[i].IsCorrect(a) {
			e.CorrectAnswers++
		}
	}

	for _, p := range ps {
		e := entries[p.ID]
		e.Score = Score(e.CorrectAnswers, e.TotalTimeTaken)
		out.Leaderboard = append(out.Leaderboard, *e)
	}
	sort.SliceStable(out.Leaderboard, func(i, j int) bool {
		a, b := out.Leaderboard[i], out.Leaderboard[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.TotalTimeTaken < b.TotalTimeTaken
	})
	return out
}

// Source loads what Compute needs.
type Source struct {
	Sessions interface {
		GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	}
	Questions interface {
		ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Question, error)
	}
	Participants interface {
		ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
	}
	Responses interface {
		ListByQuestions(ctx context.Context, questionIDs []uuid.UUID) ([]models.Response, error)
	}
}

// ForSession loads a session and computes its results.
func (src Source) ForSession(ctx context.Context, sessionID uuid.UUID) (*Results, error) {
	s, err := src.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	qs, err := src.Questions.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	ps, err := src.Participants.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	ids := make([]uuid.UUID, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	rs, err := src.Responses.ListByQuestions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return Compute(s, qs, ps, rs), nil
}
