// Package reaction toggles per-user emoji reactions on messages and fans
// the resulting set out to both participants.
package reaction

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/event"
	"github.com/matheus3301/chatd/internal/keylock"
	"github.com/matheus3301/chatd/internal/store"
)

// ErrInvalidReaction is returned when the message, user or emoji is empty.
var ErrInvalidReaction = errors.New("message, user and emoji are required")

// Store is the persistence the coordinator needs.
type Store interface {
	ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*store.ReactionResult, error)
}

// Emitter delivers an event to a user's live connection.
type Emitter interface {
	Emit(userID string, evt event.Event) bool
}

// Coordinator serializes reaction updates per message.
type Coordinator struct {
	store   Store
	emitter Emitter
	locks   *keylock.Striped
	bus     *bus.Bus
	logger  *zap.Logger
}

func New(s Store, emitter Emitter, locks *keylock.Striped, b *bus.Bus, logger *zap.Logger) *Coordinator {
	if locks == nil {
		locks = keylock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: s, emitter: emitter, locks: locks, bus: b, logger: logger}
}

// Toggle applies userID's emoji to messageID: add when absent, remove when
// identical, replace otherwise. The new reaction set goes to the message's
// sender and receiver.
func (c *Coordinator) Toggle(ctx context.Context, messageID, emoji, userID string) (*store.ReactionResult, error) {
	if messageID == "" || emoji == "" || userID == "" {
		return nil, ErrInvalidReaction
	}

	unlock := c.locks.Lock("message:" + messageID)
	res, err := c.store.ToggleReaction(ctx, messageID, userID, emoji)
	unlock()
	if err != nil {
		return nil, err
	}

	c.logger.Debug("reaction toggled",
		zap.String("message_id", messageID),
		zap.String("user_id", userID),
		zap.String("action", res.Action),
	)

	payload := event.Reactions{MessageID: messageID, Reactions: event.ReactionsFromStore(res.Reactions)}
	evt := event.New(event.ReactionUpdate, payload)
	if c.emitter != nil {
		c.emitter.Emit(res.SenderID, evt)
		if res.ReceiverID != res.SenderID {
			c.emitter.Emit(res.ReceiverID, evt)
		}
	}
	c.bus.Publish(bus.NewEvent(bus.KindReactionUpdated, payload))
	return res, nil
}
