package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Domain event kinds. Subscribers filter on the namespace prefix
// ("presence.", "message.", ...).
const (
	KindPresenceOnline   = "presence.online"
	KindPresenceOffline  = "presence.offline"
	KindTypingStarted    = "typing.started"
	KindTypingStopped    = "typing.stopped"
	KindMessageCreated   = "message.created"
	KindMessageDelivered = "message.delivered"
	KindMessageRead      = "message.read"
	KindMessageDeleted   = "message.deleted"
	KindReactionUpdated  = "reaction.updated"
	KindStatusCreated    = "status.created"
	KindStatusViewed     = "status.viewed"
	KindStatusDeleted    = "status.deleted"
)

// NewEvent builds an event stamped with the current time.
func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
