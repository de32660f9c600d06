package realtime

import (
	"encoding/json"
	"errors"
)

// Wire event names.
const (
	EventJoinSession       = "join_session"
	EventParticipantJoined = "participant_joined"
	EventHostStateUpdate   = "host_state_update"
	EventStateSync         = "state_sync"
	EventSubmitVote        = "submit_vote"
	EventNewVote           = "new_vote"
	EventAck               = "ack"
)

// Role is the role an endpoint holds inside one room.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleHost || r == RoleParticipant
}

var (
	// ErrBadRequest marks malformed or out-of-order client messages.
	ErrBadRequest = errors.New("bad request")
	// ErrUnauthorized marks host actions without a matching presenter identity.
	ErrUnauthorized = errors.New("unauthorized")
)

// WSMessage is the websocket envelope in both directions. ID is echoed on acks.
type WSMessage struct {
	Event string          `json:"event"`
	ID    string          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`

	at     int64 // unix millis the state was published or retained
	replay bool  // a retained state resent on join
}
