package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryRoomIsolation(t *testing.T) {
	reg := NewRegistry()
	a, b := newRecorder("a"), newRecorder("b")
	reg.Join("room-1", RoleParticipant, a)
	reg.Join("room-2", RoleParticipant, b)

	n := reg.Broadcast("room-1", "", WSMessage{Event: EventStateSync})

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{EventStateSync}, a.events())
	assert.Empty(t, b.events())
}

func TestRegistryRoleScoping(t *testing.T) {
	reg := NewRegistry()
	host, p1, p2 := newRecorder("host"), newRecorder("p1"), newRecorder("p2")
	reg.Join("r", RoleHost, host)
	reg.Join("r", RoleParticipant, p1)
	reg.Join("r", RoleParticipant, p2)

	assert.Equal(t, 1, reg.Broadcast("r", RoleHost, WSMessage{Event: EventNewVote}))
	assert.Equal(t, 3, reg.Broadcast("r", "", WSMessage{Event: EventStateSync}))

	assert.Equal(t, []string{EventNewVote, EventStateSync}, host.events())
	assert.Equal(t, []string{EventStateSync}, p1.events())
	assert.Equal(t, 1, reg.Count("r", RoleHost))
	assert.Equal(t, 2, reg.Count("r", RoleParticipant))
	assert.Equal(t, 3, reg.Count("r", ""))
}

func TestRegistryJoinIsIdempotentAndUpdatesRole(t *testing.T) {
	reg := NewRegistry()
	ep := newRecorder("x")

	assert.True(t, reg.Join("r", RoleParticipant, ep))
	assert.False(t, reg.Join("r", RoleParticipant, ep))
	assert.False(t, reg.Join("r", RoleHost, ep))

	assert.Equal(t, 1, reg.Count("r", ""))
	role, ok := reg.RoleOf("r", "x")
	assert.True(t, ok)
	assert.Equal(t, RoleHost, role)
}

func TestRegistryLeaveCollectsEmptyRooms(t *testing.T) {
	reg := NewRegistry()
	a, b := newRecorder("a"), newRecorder("b")
	reg.Join("r1", RoleParticipant, a)
	reg.Join("r2", RoleParticipant, a)
	reg.Join("r2", RoleParticipant, b)

	emptied := reg.Leave(a)
	assert.ElementsMatch(t, []string{"r1"}, emptied)
	assert.Equal(t, 1, reg.Rooms())

	assert.Empty(t, reg.Leave(newRecorder("unknown")))
	assert.Equal(t, []string{"r2"}, reg.Leave(b))
	assert.Equal(t, 0, reg.Rooms())
}

func TestRegistryFullEndpointOnlyDropsForItself(t *testing.T) {
	reg := NewRegistry()
	slow := &recorder{id: "slow", capacity: 1}
	fast := newRecorder("fast")
	reg.Join("r", RoleParticipant, slow)
	reg.Join("r", RoleParticipant, fast)

	reg.Broadcast("r", "", WSMessage{Event: "one"})
	n := reg.Broadcast("r", "", WSMessage{Event: "two"})

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"one"}, slow.events())
	assert.Equal(t, []string{"one", "two"}, fast.events())
}

func TestRegistryConcurrentJoinLeaveBroadcast(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ep := newRecorder(fmt.Sprintf("ep-%d", i))
			room := fmt.Sprintf("room-%d", i%5)
			for j := 0; j < 20; j++ {
				reg.Join(room, RoleParticipant, ep)
				reg.Broadcast(room, "", WSMessage{Event: "tick"})
				reg.Leave(ep)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, reg.Rooms())
}
