// Package typing tracks per-conversation typing indicators and expires
// them when a client stops renewing.
package typing

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/event"
)

// DefaultTimeout is how long a typing indicator lives without renewal.
const DefaultTimeout = 3 * time.Second

// Emitter delivers an event to a user's live connection.
type Emitter interface {
	Emit(userID string, evt event.Event) bool
}

// entry is one pending indicator. Its address identifies it: an expiry
// callback only acts if the map still holds the same entry.
type entry struct {
	receiverID string
	timer      *time.Timer
}

// Tracker holds typing state keyed by (user, conversation). Each key owns
// at most one pending timer.
type Tracker struct {
	emitter Emitter
	timeout time.Duration
	bus     *bus.Bus
	logger  *zap.Logger

	mu     sync.Mutex
	typing map[string]map[string]*entry // user -> conversation -> entry
}

func New(emitter Emitter, timeout time.Duration, b *bus.Bus, logger *zap.Logger) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		emitter: emitter,
		timeout: timeout,
		bus:     b,
		logger:  logger,
		typing:  make(map[string]map[string]*entry),
	}
}

// Start marks userID as typing in conversationID and notifies receiverID.
// Calling it again renews the indicator. Requests without a conversation
// or receiver are ignored.
func (t *Tracker) Start(userID, conversationID, receiverID string) {
	if userID == "" || conversationID == "" || receiverID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	convs := t.typing[userID]
	if convs == nil {
		convs = make(map[string]*entry)
		t.typing[userID] = convs
	}
	if prev := convs[conversationID]; prev != nil {
		prev.timer.Stop()
	}
	e := &entry{receiverID: receiverID}
	convs[conversationID] = e
	e.timer = time.AfterFunc(t.timeout, func() { t.expire(userID, conversationID, e) })

	t.notify(userID, conversationID, receiverID, true)
}

// Stop clears the indicator and notifies receiverID.
func (t *Tracker) Stop(userID, conversationID, receiverID string) {
	if userID == "" || conversationID == "" || receiverID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if e := t.remove(userID, conversationID); e != nil {
		e.timer.Stop()
	}
	t.notify(userID, conversationID, receiverID, false)
}

// Clear drops every indicator userID holds, sending a final stop for each.
// It is called when the user really disconnects.
func (t *Tracker) Clear(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	convs := t.typing[userID]
	delete(t.typing, userID)
	for convID, e := range convs {
		e.timer.Stop()
		t.notify(userID, convID, e.receiverID, false)
	}
}

// IsTyping reports whether userID currently has an indicator in
// conversationID.
func (t *Tracker) IsTyping(userID, conversationID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.typing[userID][conversationID]
	return ok
}

// Active returns the number of live indicators.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, convs := range t.typing {
		n += len(convs)
	}
	return n
}

func (t *Tracker) expire(userID, conversationID string, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.typing[userID][conversationID] != e {
		// Superseded by a renewal or already stopped.
		return
	}
	t.remove(userID, conversationID)
	t.logger.Debug("typing expired",
		zap.String("user_id", userID),
		zap.String("conversation_id", conversationID),
	)
	t.notify(userID, conversationID, e.receiverID, false)
}

// remove deletes a key and returns its entry. Caller holds t.mu.
func (t *Tracker) remove(userID, conversationID string) *entry {
	convs := t.typing[userID]
	e := convs[conversationID]
	if e == nil {
		return nil
	}
	delete(convs, conversationID)
	if len(convs) == 0 {
		delete(t.typing, userID)
	}
	return e
}

// notify emits under t.mu so a key's events reach the receiver in the
// order the transitions happened. Emit never blocks.
func (t *Tracker) notify(userID, conversationID, receiverID string, isTyping bool) {
	payload := event.Typing{UserID: userID, ConversationID: conversationID, IsTyping: isTyping}
	if t.emitter != nil {
		t.emitter.Emit(receiverID, event.New(event.UserTyping, payload))
	}
	kind := bus.KindTypingStopped
	if isTyping {
		kind = bus.KindTypingStarted
	}
	t.bus.Publish(bus.NewEvent(kind, payload))
}
