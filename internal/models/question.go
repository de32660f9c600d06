package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QuestionType is the answer format of a question.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeWordCloud      QuestionType = "WORD_CLOUD"
	QuestionTypeRatingScale    QuestionType = "RATING_SCALE"
)

// Question is one slide of a session.
type Question struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Title     string          `json:"title"`
	Order     int             `json:"order"`
	Type      QuestionType    `json:"type"`
	Options   json.RawMessage `json:"options,omitempty"`
	TimeLimit *int            `json:"time_limit,omitempty"` // seconds; nil or 0 = unlimited
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ChoiceOption is one option of a MULTIPLE_CHOICE question.
type ChoiceOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// RatingScale is the option payload of a RATING_SCALE question.
type RatingScale struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

var ErrInvalidOptions = errors.New("invalid question options")

// ValidQuestionType reports whether t is a known question type.
func ValidQuestionType(t QuestionType) bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeWordCloud, QuestionTypeRatingScale:
		return true
	}
	return false
}

// ChoiceOptions decodes the options of a MULTIPLE_CHOICE question.
func (q *Question) ChoiceOptions() ([]ChoiceOption, error) {
	if q.Type != QuestionTypeMultipleChoice || len(q.Options) == 0 {
		return nil, nil
	}
	var opts []ChoiceOption
	if err := json.Unmarshal(q.Options, &opts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return opts, nil
}

// IsCorrect reports whether answer picks a correct option. Only MULTIPLE_CHOICE questions have one.
func (q *Question) IsCorrect(a Answer) bool {
	opts, err := q.ChoiceOptions()
	if err != nil {
		return false
	}
	for _, o := range opts {
		if o.ID == a.OptionID {
			return o.IsCorrect
		}
	}
	return false
}

// ValidateOptions checks the option payload against the question type.
func ValidateOptions(t QuestionType, raw json.RawMessage) error {
	switch t {
	case QuestionTypeMultipleChoice:
		var opts []ChoiceOption
		if err := json.Unmarshal(raw, &opts); err != nil {
			return fmt.Errorf("%w: options must be a list of {id, text, isCorrect}", ErrInvalidOptions)
		}
		if len(opts) < 2 {
			return fmt.Errorf("%w: at least two options required", ErrInvalidOptions)
		}
		seen := make(map[string]struct{}, len(opts))
		for _, o := range opts {
			if o.ID == "" || o.Text == "" {
				return fmt.Errorf("%w: option id and text required", ErrInvalidOptions)
			}
			if _, dup := seen[o.ID]; dup {
				return fmt.Errorf("%w: duplicate option id %q", ErrInvalidOptions, o.ID)
			}
			seen[o.ID] = struct{}{}
		}
	case QuestionTypeRatingScale:
		var rs RatingScale
		if err := json.Unmarshal(raw, &rs); err != nil {
			return fmt.Errorf("%w: options must be {min, max, step}", ErrInvalidOptions)
		}
		if rs.Min >= rs.Max || rs.Step <= 0 {
			return fmt.Errorf("%w: rating scale needs min < max and step > 0", ErrInvalidOptions)
		}
	case QuestionTypeWordCloud:
		// free-form
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidOptions, t)
	}
	return nil
}

// NormalizeOptions maps an absent or JSON null payload to nil.
func NormalizeOptions(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

// QuestionPatch holds editable question fields. Nil means unchanged.
type QuestionPatch struct {
	Title     *string         `json:"title"`
	Order     *int            `json:"order"`
	Type      *QuestionType   `json:"type"`
	Options   json.RawMessage `json:"options"`
	TimeLimit *int            `json:"time_limit"`
}

// Apply copies the set fields of p onto q.
func (p QuestionPatch) Apply(q *Question) {
	if p.Title != nil {
		q.Title = *p.Title
	}
	if p.Order != nil {
		q.Order = *p.Order
	}
	if p.Type != nil {
		q.Type = *p.Type
	}
	if opts := NormalizeOptions(p.Options); opts != nil {
		q.Options = opts
	}
	if p.TimeLimit != nil {
		q.TimeLimit = p.TimeLimit
	}
}
