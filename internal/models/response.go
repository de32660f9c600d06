package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Answer is the vote payload. Which field is set depends on the question type.
type Answer struct {
	OptionID string   `json:"optionId,omitempty"`
	Text     string   `json:"text,omitempty"`
	Value    *float64 `json:"value,omitempty"`
}

// TallyKey returns the live-tally bucket for the answer, or "" when the answer is empty.
func (a Answer) TallyKey() string {
	switch {
	case a.OptionID != "":
		return a.OptionID
	case strings.TrimSpace(a.Text) != "":
		return strings.ToLower(strings.TrimSpace(a.Text))
	case a.Value != nil:
		return strconv.FormatFloat(*a.Value, 'f', -1, 64)
	}
	return ""
}

// ParseAnswer decodes a stored or submitted answer payload.
func ParseAnswer(raw json.RawMessage) (Answer, error) {
	var a Answer
	if len(raw) == 0 {
		return a, nil
	}
	err := json.Unmarshal(raw, &a)
	return a, err
}

// Response is the stored vote of one participant for one question.
// (ParticipantID, QuestionID) is unique.
type Response struct {
	ID            uuid.UUID       `json:"id"`
	ParticipantID uuid.UUID       `json:"participant_id"`
	QuestionID    uuid.UUID       `json:"question_id"`
	Answer        json.RawMessage `json:"answer"`
	TimeTaken     int             `json:"time_taken"` // milliseconds
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
