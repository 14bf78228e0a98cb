// Package registry maps each online user to their single live connection.
package registry

import (
	"sort"
	"sync"

	"github.com/matheus3301/chatd/internal/event"
)

// Conn is a live client connection.
type Conn interface {
	// ID uniquely identifies this connection, not the user.
	ID() string
	// Send enqueues an event without blocking. It reports false when the
	// connection can no longer accept events.
	Send(evt event.Event) bool
	Close()
}

// Registry holds at most one connection per user. The last connection to
// register for a user wins.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func New() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register maps userID to c and returns the connection it replaced, if
// any. The caller is responsible for closing the returned connection.
func (r *Registry) Register(userID string, c Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[userID]
	r.conns[userID] = c
	if prev != nil && prev.ID() == c.ID() {
		return nil
	}
	return prev
}

// Unregister removes userID's mapping only if it still points at connID.
// A disconnect from a connection that was already replaced is a no-op and
// returns false.
func (r *Registry) Unregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[userID]
	if !ok || c.ID() != connID {
		return false
	}
	delete(r.conns, userID)
	return true
}

// Lookup returns the live connection for userID.
func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// IsCurrent reports whether connID is userID's registered connection.
func (r *Registry) IsCurrent(userID, connID string) bool {
	c, ok := r.Lookup(userID)
	return ok && c.ID() == connID
}

// Emit sends evt to userID's connection. It reports false when the user is
// offline or the connection refused the event.
func (r *Registry) Emit(userID string, evt event.Event) bool {
	c, ok := r.Lookup(userID)
	if !ok {
		return false
	}
	return c.Send(evt)
}

// Broadcast sends evt to every registered connection and returns how many
// accepted it.
func (r *Registry) Broadcast(evt event.Event) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	n := 0
	for _, c := range targets {
		if c.Send(evt) {
			n++
		}
	}
	return n
}

// Count returns the number of online users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Online returns the ids of online users, sorted.
func (r *Registry) Online() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
