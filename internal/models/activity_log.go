package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActivityAction is the kind of an activity log entry.
type ActivityAction string

const (
	ActionSessionStarted  ActivityAction = "SESSION_STARTED"
	ActionSessionEnded    ActivityAction = "SESSION_ENDED"
	ActionResultsReset    ActivityAction = "RESULTS_RESET"
	ActionResultsExported ActivityAction = "RESULTS_EXPORTED"
)

// ActivityLog is an append-only audit record of a lifecycle transition.
type ActivityLog struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Action    ActivityAction  `json:"action"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
