package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionKind is how a session is paced.
type SessionKind string

const (
	// SessionKindLive is presenter-paced.
	SessionKindLive SessionKind = "LIVE"
	// SessionKindSurvey is self-paced by each participant.
	SessionKindSurvey SessionKind = "SURVEY"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusCreated  SessionStatus = "CREATED"
	SessionStatusActive   SessionStatus = "ACTIVE"
	SessionStatusFinished SessionStatus = "FINISHED"
)

// Session is one run of a question sequence, joined by PIN.
type Session struct {
	ID              uuid.UUID     `json:"id"`
	Name            string        `json:"name"`
	PIN             string        `json:"pin"`
	Kind            SessionKind   `json:"type"`
	Status          SessionStatus `json:"status"`
	HostID          uuid.UUID     `json:"host_id"`
	BannerURL       *string       `json:"banner_url,omitempty"`
	ThankYouMessage *string       `json:"thank_you_message,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Room returns the realtime room key for the session.
func (s *Session) Room() string {
	return s.ID.String()
}

// ValidKind reports whether k is a known session kind.
func ValidKind(k SessionKind) bool {
	return k == SessionKindLive || k == SessionKindSurvey
}

// SessionPatch holds the editable presentation fields of a session. Nil means unchanged.
type SessionPatch struct {
	Name            *string `json:"name"`
	BannerURL       *string `json:"banner_url"`
	ThankYouMessage *string `json:"thank_you_message"`
}
