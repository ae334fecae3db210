package notify

import (
	"context"
	"slices"
	"sync"

	"github.com/parley-labs/parley/pkg/contracts"
)

// MemoryChannel is the in-process Channel used by tests and single-node
// deployments without redis.
type MemoryChannel struct {
	mu      sync.Mutex
	events  map[string][]Event
	members map[string]map[contracts.ParticipantNumber]bool
	subs    map[string][]chan Event
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{
		events:  make(map[string][]Event),
		members: make(map[string]map[contracts.ParticipantNumber]bool),
		subs:    make(map[string][]chan Event),
	}
}

func (c *MemoryChannel) Publish(_ context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[ev.SessionID] = append(c.events[ev.SessionID], ev)
	for _, sub := range c.subs[ev.SessionID] {
		select {
		case sub <- ev:
		default: // slow consumer; reconnect pulls state from the store
		}
	}
	return nil
}

func (c *MemoryChannel) Join(_ context.Context, sessionID string, n contracts.ParticipantNumber) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.members[sessionID] == nil {
		c.members[sessionID] = make(map[contracts.ParticipantNumber]bool)
	}
	c.members[sessionID][n] = true
	return nil
}

func (c *MemoryChannel) Leave(_ context.Context, sessionID string, n contracts.ParticipantNumber) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.members[sessionID], n)
	return nil
}

func (c *MemoryChannel) Connected(_ context.Context, sessionID string) ([]contracts.ParticipantNumber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []contracts.ParticipantNumber
	for n := range c.members[sessionID] {
		out = append(out, n)
	}
	slices.Sort(out)
	return out, nil
}

func (c *MemoryChannel) Subscribe(_ context.Context, sessionID string) (<-chan Event, func(), error) {
	sub := make(chan Event, 16)
	c.mu.Lock()
	c.subs[sessionID] = append(c.subs[sessionID], sub)
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		subs := c.subs[sessionID]
		for i, s := range subs {
			if s == sub {
				c.subs[sessionID] = append(subs[:i], subs[i+1:]...)
				close(sub)
				return
			}
		}
	}
	return sub, cancel, nil
}

// Events returns everything published for a session, for tests.
func (c *MemoryChannel) Events(sessionID string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.events[sessionID])
}
