package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestHubFanOutAcrossProcessesOnSharedTransport(t *testing.T) {
	shared := NewLocalTransport()
	hubA := NewHub(shared, zaptest.NewLogger(t))
	hubB := NewHub(shared, zaptest.NewLogger(t))

	onA, onB, elsewhere := newRecorder("a"), newRecorder("b"), newRecorder("c")
	hubA.Join("room", RoleParticipant, onA)
	hubB.Join("room", RoleParticipant, onB)
	hubB.Join("other", RoleParticipant, elsewhere)

	require.NoError(t, hubA.Broadcast(context.Background(), "room", EventStateSync, "", json.RawMessage(`{}`)))

	assert.Equal(t, 1, onA.count(EventStateSync))
	assert.Equal(t, 1, onB.count(EventStateSync))
	assert.Empty(t, elsewhere.events())
}

func TestHubRemoteScopeIsHonoured(t *testing.T) {
	shared := NewLocalTransport()
	hubA := NewHub(shared, zaptest.NewLogger(t))
	hubB := NewHub(shared, zaptest.NewLogger(t))

	host, participant := newRecorder("host"), newRecorder("p")
	hubB.Join("room", RoleHost, host)
	hubB.Join("room", RoleParticipant, participant)
	hubA.Join("room", RoleParticipant, newRecorder("sender"))

	require.NoError(t, hubA.Broadcast(context.Background(), "room", EventNewVote, RoleHost, json.RawMessage(`{}`)))

	assert.Equal(t, []string{EventNewVote}, host.events())
	assert.Empty(t, participant.events())
}

func TestHubSubscriptionFollowsLocalMembership(t *testing.T) {
	shared := NewLocalTransport()
	hub := NewHub(shared, zaptest.NewLogger(t))
	a, b := newRecorder("a"), newRecorder("b")

	hub.Join("room", RoleParticipant, a)
	hub.Join("room", RoleHost, b)
	assert.Equal(t, 1, shared.Subscribers("room"))

	hub.Leave(a)
	assert.Equal(t, 1, shared.Subscribers("room"))

	hub.Leave(b)
	assert.Equal(t, 0, shared.Subscribers("room"))
}

func TestHubOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}
	hubA := NewHub(NewRedisTransport(newClient(), zaptest.NewLogger(t)), zaptest.NewLogger(t))
	hubB := NewHub(NewRedisTransport(newClient(), zaptest.NewLogger(t)), zaptest.NewLogger(t))
	t.Cleanup(hubA.Close)
	t.Cleanup(hubB.Close)

	onA, onB := newRecorder("a"), newRecorder("b")
	hubA.Join("room", RoleParticipant, onA)
	hubB.Join("room", RoleParticipant, onB)

	require.NoError(t, hubA.Broadcast(context.Background(), "room", EventStateSync, "", json.RawMessage(`{"status":"WAITING"}`)))

	assert.Eventually(t, func() bool { return onB.count(EventStateSync) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, onA.count(EventStateSync))
}

func TestRedisTransportRetainedState(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	tr := NewRedisTransport(client, zaptest.NewLogger(t))
	ctx := context.Background()

	env, err := tr.Retained(ctx, "room")
	require.NoError(t, err)
	assert.Nil(t, env)

	require.NoError(t, tr.Retain(ctx, "room", Envelope{Event: EventStateSync, Data: json.RawMessage(`{"status":"ACTIVE"}`)}))
	assert.Equal(t, retainedTTL, mr.TTL(retainedPrefix+"room"))

	env, err = tr.Retained(ctx, "room")
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, EventStateSync, env.Event)
	assert.JSONEq(t, `{"status":"ACTIVE"}`, string(env.Data))

	require.NoError(t, tr.Forget(ctx, "room"))
	env, err = tr.Retained(ctx, "room")
	require.NoError(t, err)
	assert.Nil(t, env)
}

func TestNewTransportFallsBackWithWarning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	tr := NewTransport(nil, errors.New("dial tcp 127.0.0.1:6379: connection refused"), zap.New(core))

	assert.Equal(t, "local", tr.Name())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.WarnLevel, logs.All()[0].Level)

	// the degraded server still serves its own rooms
	hub := NewHub(tr, zaptest.NewLogger(t))
	ep := newRecorder("p")
	hub.Join("room", RoleParticipant, ep)
	require.NoError(t, hub.Broadcast(context.Background(), "room", EventStateSync, "", json.RawMessage(`{}`)))
	assert.Equal(t, 1, ep.count(EventStateSync))
}

func TestNewTransportUsesRedisWhenConnected(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, "redis", NewTransport(client, nil, zaptest.NewLogger(t)).Name())
}
