package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is an audience member of one session. Nickname is unique within the session.
type Participant struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Nickname  *string   `json:"nickname,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns the nickname or a placeholder for anonymous participants.
func (p *Participant) DisplayName() string {
	if p.Nickname == nil || *p.Nickname == "" {
		return "Guest"
	}
	return *p.Nickname
}
