package realtime

import (
	"context"
	"encoding/json"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Envelope is what travels between processes for one room broadcast.
type Envelope struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	Scope  Role            `json:"scope,omitempty"`
	Origin string          `json:"origin,omitempty"`
	At     int64           `json:"at"`
}

// Transport fans room broadcasts out to every process and keeps the last
// retained envelope per room.
type Transport interface {
	Publish(ctx context.Context, room string, env Envelope) error
	// Subscribe calls handler for every envelope published to room until cancel is called.
	Subscribe(room string, handler func(Envelope)) (cancel func(), err error)
	Retain(ctx context.Context, room string, env Envelope) error
	// Retained returns nil, nil when nothing is retained for room.
	Retained(ctx context.Context, room string) (*Envelope, error)
	Forget(ctx context.Context, room string) error
	Name() string
}

// NewTransport returns a Redis transport, or an in-process one when Redis is
// unavailable. Degrading is logged and never fatal.
func NewTransport(client *goredis.Client, connErr error, logger *zap.Logger) Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil || connErr != nil {
		logger.Warn("redis unavailable, realtime fan-out limited to this process", zap.Error(connErr))
		return NewLocalTransport()
	}
	return NewRedisTransport(client, logger)
}
