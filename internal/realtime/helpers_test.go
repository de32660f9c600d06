package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder is an Endpoint that keeps every message. capacity > 0 makes it drop once full.
type recorder struct {
	id       string
	capacity int

	mu   sync.Mutex
	msgs []WSMessage
}

func newRecorder(id string) *recorder { return &recorder{id: id} }

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(msg WSMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capacity > 0 && len(r.msgs) >= r.capacity {
		return false
	}
	r.msgs = append(r.msgs, msg)
	return true
}

func (r *recorder) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Event
	}
	return out
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.events() {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) last(event string) (WSMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Event == event {
			return r.msgs[i], true
		}
	}
	return WSMessage{}, false
}

func decodeState(t *testing.T, msg WSMessage) State {
	t.Helper()
	var st State
	require.NoError(t, json.Unmarshal(msg.Data, &st))
	return st
}
