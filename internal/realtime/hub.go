package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait drive the websocket heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

// Hub joins the local Registry to a Transport. A room is subscribed on the
// transport while at least one local endpoint is in it.
type Hub struct {
	registry  *Registry
	transport Transport
	node      string

	mu   sync.Mutex // guards subs and serializes join/leave against subscription changes
	subs map[string]func()

	logger *zap.Logger
}

// NewHub creates a hub publishing through transport.
func NewHub(transport Transport, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if transport == nil {
		transport = NewLocalTransport()
	}
	return &Hub{
		registry:  NewRegistry(),
		transport: transport,
		node:      uuid.NewString(),
		subs:      make(map[string]func()),
		logger:    logger,
	}
}

// Join places ep in room. A failed transport subscription leaves the room
// local-only and is retried on the next join.
func (h *Hub) Join(room string, role Role, ep Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.registry.Join(room, role, ep)
	if _, ok := h.subs[room]; !ok {
		cancel, err := h.transport.Subscribe(room, func(env Envelope) {
			if env.Origin == h.node {
				return
			}
			h.registry.Broadcast(room, env.Scope, WSMessage{Event: env.Event, Data: env.Data, at: env.At})
		})
		if err != nil {
			h.logger.Warn("room subscription failed", zap.String("room", room), zap.Error(err))
		} else {
			h.subs[room] = cancel
		}
	}
	h.logger.Debug("endpoint joined room", zap.String("endpoint", ep.ID()), zap.String("room", room), zap.String("role", string(role)))
}

// Leave removes ep from all rooms and drops subscriptions for rooms left empty.
func (h *Hub) Leave(ep Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, room := range h.registry.Leave(ep) {
		if cancel, ok := h.subs[room]; ok {
			cancel()
			delete(h.subs, room)
		}
		h.logger.Debug("room closed", zap.String("room", room))
	}
}

// Broadcast delivers to local members first, then publishes for other processes.
func (h *Hub) Broadcast(ctx context.Context, room, event string, scope Role, data json.RawMessage) error {
	at := time.Now().UnixMilli()
	h.registry.Broadcast(room, scope, WSMessage{Event: event, Data: data, at: at})
	env := Envelope{Event: event, Data: data, Scope: scope, Origin: h.node, At: at}
	if err := h.transport.Publish(ctx, room, env); err != nil {
		h.logger.Warn("broadcast publish failed", zap.String("room", room), zap.String("event", event), zap.Error(err))
		return err
	}
	return nil
}

// Retain stores event as the room's retained state.
func (h *Hub) Retain(ctx context.Context, room, event string, data json.RawMessage) error {
	return h.transport.Retain(ctx, room, Envelope{Event: event, Data: data, Origin: h.node, At: time.Now().UnixMilli()})
}

// Retained returns the room's retained state, or nil.
func (h *Hub) Retained(ctx context.Context, room string) (*Envelope, error) {
	return h.transport.Retained(ctx, room)
}

// Forget drops the room's retained state.
func (h *Hub) Forget(ctx context.Context, room string) error {
	return h.transport.Forget(ctx, room)
}

// RoleOf returns the role endpoint id holds in room on this process.
func (h *Hub) RoleOf(room, id string) (Role, bool) {
	return h.registry.RoleOf(room, id)
}

// Count returns the local member count of room, optionally filtered by role.
func (h *Hub) Count(room string, role Role) int {
	return h.registry.Count(room, role)
}

// TransportName reports which transport the hub runs on.
func (h *Hub) TransportName() string {
	return h.transport.Name()
}

// Close cancels every room subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, cancel := range h.subs {
		cancel()
		delete(h.subs, room)
	}
}
