// Package registrytest provides an in-memory connection for tests.
package registrytest

import (
	"sync"

	"github.com/matheus3301/chatd/internal/event"
)

// Conn records every event it is sent.
type Conn struct {
	id string

	mu     sync.Mutex
	events []event.Event
	closed bool
}

func NewConn(id string) *Conn {
	return &Conn{id: id}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Send(evt event.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.events = append(c.events, evt)
	return true
}

func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Events returns a copy of everything sent so far.
func (c *Conn) Events() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]event.Event(nil), c.events...)
}

// Named returns the sent events with the given name.
func (c *Conn) Named(name string) []event.Event {
	var out []event.Event
	for _, e := range c.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset forgets recorded events.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}
