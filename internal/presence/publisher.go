// Package presence owns the connect/disconnect lifecycle: it is the only
// writer of the connection registry, broadcasts online/offline changes and
// persists last-seen times.
package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/event"
	"github.com/matheus3301/chatd/internal/keylock"
	"github.com/matheus3301/chatd/internal/registry"
)

const persistTimeout = 5 * time.Second

// Store persists presence records.
type Store interface {
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error
	LastSeen(ctx context.Context, userID string) (time.Time, error)
}

// OnlineResetter is implemented by stores that keep an online flag which
// must be cleared when the daemon starts.
type OnlineResetter interface {
	ResetOnline(ctx context.Context) error
}

func resetOnline(ctx context.Context, s Store) error {
	if r, ok := s.(OnlineResetter); ok {
		return r.ResetOnline(ctx)
	}
	return nil
}

// Publisher serializes lifecycle changes per user. Registry mutation,
// broadcast and persistence for one user never interleave with another
// lifecycle change of the same user.
type Publisher struct {
	reg    *registry.Registry
	store  Store
	locks  *keylock.Striped
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	offline func(userID string)
}

func New(reg *registry.Registry, store Store, locks *keylock.Striped, b *bus.Bus, logger *zap.Logger) *Publisher {
	if locks == nil {
		locks = keylock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		reg:    reg,
		store:  store,
		locks:  locks,
		bus:    b,
		logger: logger,
		now:    time.Now,
	}
}

// OnOffline sets fn to run whenever a user goes offline. It runs while the
// user's lifecycle lock is held, so a reconnect cannot interleave with it.
// Set it before the publisher is shared.
func (p *Publisher) OnOffline(fn func(userID string)) {
	p.offline = fn
}

// ResetOnline clears persisted online flags left behind by a previous
// process. Call it before accepting connections.
func (p *Publisher) ResetOnline(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	return resetOnline(ctx, p.store)
}

// Connect registers conn as userID's live connection and announces the
// user as online. A connection it supersedes is closed.
func (p *Publisher) Connect(ctx context.Context, userID string, conn registry.Conn) {
	unlock := p.locks.Lock("presence:" + userID)
	defer unlock()

	if prev := p.reg.Register(userID, conn); prev != nil {
		p.logger.Info("connection superseded",
			zap.String("user_id", userID),
			zap.String("old_conn", prev.ID()),
			zap.String("new_conn", conn.ID()),
		)
		prev.Close()
	}

	now := p.now()
	payload := event.Presence{UserID: userID, IsOnline: true, LastSeen: &now}
	p.reg.Broadcast(event.New(event.UserStatus, payload))
	p.persist(ctx, userID, true, now)
	p.bus.Publish(bus.NewEvent(bus.KindPresenceOnline, payload))
}

// Disconnect removes connID if it is still userID's registered connection
// and announces the user as offline. It reports false for a stale or
// duplicate disconnect, which changes nothing.
func (p *Publisher) Disconnect(ctx context.Context, userID, connID string) bool {
	unlock := p.locks.Lock("presence:" + userID)
	defer unlock()

	if !p.reg.Unregister(userID, connID) {
		p.logger.Debug("stale disconnect ignored",
			zap.String("user_id", userID),
			zap.String("conn_id", connID),
		)
		return false
	}
	if p.offline != nil {
		p.offline(userID)
	}

	now := p.now()
	payload := event.Presence{UserID: userID, IsOnline: false, LastSeen: &now}
	p.reg.Broadcast(event.New(event.UserStatus, payload))
	p.persist(ctx, userID, false, now)
	p.bus.Publish(bus.NewEvent(bus.KindPresenceOffline, payload))
	return true
}

// Status returns userID's current presence. Nothing is broadcast.
func (p *Publisher) Status(ctx context.Context, userID string) (event.Presence, error) {
	if _, ok := p.reg.Lookup(userID); ok {
		now := p.now()
		return event.Presence{UserID: userID, IsOnline: true, LastSeen: &now}, nil
	}
	out := event.Presence{UserID: userID}
	if p.store == nil {
		return out, nil
	}
	seen, err := p.store.LastSeen(ctx, userID)
	if err != nil {
		return out, err
	}
	if !seen.IsZero() {
		out.LastSeen = &seen
	}
	return out, nil
}

// persist writes the presence record. Failures are logged; the in-memory
// state stays authoritative.
func (p *Publisher) persist(ctx context.Context, userID string, online bool, at time.Time) {
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := p.store.SetPresence(ctx, userID, online, at); err != nil {
		p.logger.Warn("persist presence failed",
			zap.String("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err),
		)
	}
}
