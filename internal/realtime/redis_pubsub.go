package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "pace:room:"
	retainedPrefix = "pace:state:"
	retainedTTL    = 24 * time.Hour
)

// RedisTransport fans broadcasts out over Redis pub/sub and keeps retained
// state as plain keys.
type RedisTransport struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisTransport creates a transport on client.
func NewRedisTransport(client *redis.Client, logger *zap.Logger) *RedisTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTransport{client: client, logger: logger}
}

func (r *RedisTransport) Name() string { return "redis" }

func (r *RedisTransport) Publish(ctx context.Context, room string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, channelPrefix+room, body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", room, err)
	}
	return nil
}

// Subscribe waits for the subscription to be confirmed before returning, so a
// Publish issued afterwards is seen.
func (r *RedisTransport) Subscribe(room string, handler func(Envelope)) (func(), error) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channelPrefix+room)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", room, err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					r.logger.Warn("dropping malformed envelope", zap.String("room", room), zap.Error(err))
					continue
				}
				handler(env)
			}
		}
	}()
	return cancel, nil
}

func (r *RedisTransport) Retain(ctx context.Context, room string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, retainedPrefix+room, body, retainedTTL).Err()
}

func (r *RedisTransport) Retained(ctx context.Context, room string) (*Envelope, error) {
	raw, err := r.client.Get(ctx, retainedPrefix+room).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get retained %s: %w", room, err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode retained %s: %w", room, err)
	}
	return &env, nil
}

func (r *RedisTransport) Forget(ctx context.Context, room string) error {
	return r.client.Del(ctx, retainedPrefix+room).Err()
}
