package realtime

import "sync"

// Endpoint is a connected peer that can receive messages. Send must not block;
// it reports false when the message was dropped.
type Endpoint interface {
	ID() string
	Send(msg WSMessage) bool
}

type member struct {
	ep   Endpoint
	role Role
}

// Registry tracks which endpoints are in which rooms, and with which role.
// It is local to one process.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]member
	joined map[string]map[string]struct{} // endpoint id -> rooms
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[string]member),
		joined: make(map[string]map[string]struct{}),
	}
}

// Join adds ep to room with role, creating the room when needed. Joining again
// only updates the role. It reports whether the room was created by this call.
func (r *Registry) Join(room string, role Role, ep Endpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.rooms[room]
	if !exists {
		members = make(map[string]member)
		r.rooms[room] = members
	}
	id := ep.ID()
	members[id] = member{ep: ep, role: role}

	rooms := r.joined[id]
	if rooms == nil {
		rooms = make(map[string]struct{})
		r.joined[id] = rooms
	}
	rooms[room] = struct{}{}
	return !exists
}

// Leave removes ep from every room it joined and returns the rooms that became empty.
func (r *Registry) Leave(ep Endpoint) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := ep.ID()
	var emptied []string
	for room := range r.joined[id] {
		members := r.rooms[room]
		delete(members, id)
		if len(members) == 0 {
			delete(r.rooms, room)
			emptied = append(emptied, room)
		}
	}
	delete(r.joined, id)
	return emptied
}

// Broadcast sends msg to the members of room, or only to those holding scope
// when scope is set. Full endpoints drop the message. It returns the number of
// endpoints that accepted it.
func (r *Registry) Broadcast(room string, scope Role, msg WSMessage) int {
	r.mu.RLock()
	targets := make([]Endpoint, 0, len(r.rooms[room]))
	for _, m := range r.rooms[room] {
		if scope == "" || m.role == scope {
			targets = append(targets, m.ep)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, ep := range targets {
		if ep.Send(msg) {
			delivered++
		}
	}
	return delivered
}

// RoleOf returns the role endpoint id holds in room.
func (r *Registry) RoleOf(room, id string) (Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.rooms[room][id]
	return m.role, ok
}

// Count returns the number of members of room, or of those holding role when set.
func (r *Registry) Count(room string, role Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if role == "" {
		return len(r.rooms[room])
	}
	n := 0
	for _, m := range r.rooms[room] {
		if m.role == role {
			n++
		}
	}
	return n
}

// Rooms returns the number of live rooms.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
