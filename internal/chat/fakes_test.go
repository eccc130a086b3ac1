package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"clubhub/internal/domain"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	events []Event
	full   bool
	closed atomic.Bool
	late   atomic.Int64
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Deliver(evt Event) bool {
	if c.closed.Load() {
		c.late.Add(1)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.events = append(c.events, evt)
	return true
}

func (c *fakeConn) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *fakeConn) Named(name string) []Event {
	var out []Event
	for _, evt := range c.Events() {
		if evt.Name == name {
			out = append(out, evt)
		}
	}
	return out
}

type fakeResolver struct {
	mu    sync.Mutex
	users map[string]bool
	err   error
	calls int
}

func newFakeResolver(ids ...string) *fakeResolver {
	r := &fakeResolver{users: make(map[string]bool)}
	for _, id := range ids {
		r.users[id] = true
	}
	return r
}

func (r *fakeResolver) Exists(_ context.Context, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return false, r.err
	}
	return r.users[userID], nil
}

type fakeStore struct {
	mu       sync.Mutex
	messages []domain.Message
	err      error
	gate     chan struct{}
	entered  chan struct{}
}

func (s *fakeStore) Append(ctx context.Context, msg domain.Message) error {
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.gate != nil {
		<-s.gate
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *fakeStore) ByRoom(room string) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.RoomID == room {
			out = append(out, m)
		}
	}
	return out
}

var errStoreDown = errors.New("store down")
