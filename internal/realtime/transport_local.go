package realtime

import (
	"context"
	"sync"
)

// LocalTransport is an in-process Transport. Hubs sharing one instance behave
// like separate processes sharing a broker.
type LocalTransport struct {
	mu       sync.RWMutex
	nextID   int
	subs     map[string]map[int]func(Envelope)
	retained map[string]Envelope
}

// NewLocalTransport returns an empty in-process transport.
func NewLocalTransport() *LocalTransport {
	return &LocalTransport{
		subs:     make(map[string]map[int]func(Envelope)),
		retained: make(map[string]Envelope),
	}
}

func (t *LocalTransport) Name() string { return "local" }

// Publish delivers env to the room's subscribers synchronously.
func (t *LocalTransport) Publish(_ context.Context, room string, env Envelope) error {
	t.mu.RLock()
	handlers := make([]func(Envelope), 0, len(t.subs[room]))
	for _, h := range t.subs[room] {
		handlers = append(handlers, h)
	}
	t.mu.RUnlock()

	for _, h := range handlers {
		h(env)
	}
	return nil
}

func (t *LocalTransport) Subscribe(room string, handler func(Envelope)) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	if t.subs[room] == nil {
		t.subs[room] = make(map[int]func(Envelope))
	}
	t.subs[room][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs[room], id)
			if len(t.subs[room]) == 0 {
				delete(t.subs, room)
			}
		})
	}, nil
}

func (t *LocalTransport) Retain(_ context.Context, room string, env Envelope) error {
	t.mu.Lock()
	t.retained[room] = env
	t.mu.Unlock()
	return nil
}

func (t *LocalTransport) Retained(_ context.Context, room string) (*Envelope, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	env, ok := t.retained[room]
	if !ok {
		return nil, nil
	}
	return &env, nil
}

func (t *LocalTransport) Forget(_ context.Context, room string) error {
	t.mu.Lock()
	delete(t.retained, room)
	t.mu.Unlock()
	return nil
}

// Subscribers returns the number of live subscriptions to room.
func (t *LocalTransport) Subscribers(room string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs[room])
}
