// Package event defines the live-channel envelope, event names and payloads
// exchanged with clients over the WebSocket transport.
package event

import "encoding/json"

// Inbound event names.
const (
	UserConnected = "user_connected"
	TypingStart   = "typing_start"
	TypingStop    = "typing_stop"
	SendMessage   = "send_message"
	MessageRead   = "message_read"
	AddReaction   = "add_reaction"
	GetUserStatus = "get_user_status"
)

// Outbound event names. MessageRead is also sent outbound by the HTTP
// mark-read path.
const (
	UserStatus          = "user_status"
	UserTyping          = "user_typing"
	ReceiveMessage      = "receive_message"
	MessageSent         = "message_sent"
	MessageStatusUpdate = "message_status_update"
	ReactionUpdate      = "reaction_update"
	MessageDeleted      = "message_deleted"
	NewStatus           = "new_status"
	StatusViewed        = "status_viewed"
	StatusDeleted       = "status_deleted"
	Error               = "error"
)

// Event is an outbound envelope.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// New builds an outbound event.
func New(name string, data any) Event {
	return Event{Name: name, Data: data}
}

// Inbound is a client envelope whose payload is decoded by the handler
// registered for its name.
type Inbound struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the payload into v. An absent payload leaves v untouched.
func (in Inbound) Decode(v any) error {
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return nil
	}
	return json.Unmarshal(in.Data, v)
}

// ErrorPayload is sent to the originating connection when an inbound event
// fails.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Errorf builds an error event for the given inbound event name.
func Errorf(inbound, code, msg string) Event {
	return New(Error, ErrorPayload{Event: inbound, Code: code, Message: msg})
}
