package store

import "github.com/matheus3301/chatd/internal/status"

// User holds display fields and the persisted presence projection.
type User struct {
	ID             string
	Username       string
	ProfilePicture string
	IsOnline       bool
	LastSeen       int64
}

// Participant is the display projection of a user joined into messages
// and conversations.
type Participant struct {
	ID             string
	Username       string
	ProfilePicture string
}

// Conversation is the durable one-to-one thread between two users.
// ParticipantA <= ParticipantB always holds.
type Conversation struct {
	ID            string
	ParticipantA  string
	ParticipantB  string
	LastMessageID string
	UnreadCount   int
	CreatedAt     int64
	UpdatedAt     int64
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// ConversationView is a conversation with resolved participants and its
// last message.
type ConversationView struct {
	Conversation
	Participants []Participant
	LastMessage  *Message
}

// Message represents a persisted direct message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Content        string
	ContentType    string // text, image, video
	MediaURL       string
	Status         status.Status
	Version        int64
	CreatedAt      int64
}

// MessageView is a message with participant display fields and reactions.
type MessageView struct {
	Message
	Sender    Participant
	Receiver  Participant
	Reactions []Reaction
}

// Reaction is one user's emoji on a message. A message holds at most one
// reaction per user.
type Reaction struct {
	UserID   string
	Username string
	Emoji    string
}

// NewMessage is the input for CreateMessage.
type NewMessage struct {
	SenderID    string
	ReceiverID  string
	Content     string
	ContentType string
	MediaURL    string
}

// Transition identifies a message whose status advanced, and who sent it.
type Transition struct {
	MessageID string
	SenderID  string
}

// StatusUpdate is a 24h status post.
type StatusUpdate struct {
	ID          string
	UserID      string
	Content     string
	ContentType string
	MediaURL    string
	CreatedAt   int64
	ExpiresAt   int64
	Owner       Participant
	Viewers     []Participant
}

// NewStatus is the input for CreateStatus.
type NewStatus struct {
	UserID      string
	Content     string
	ContentType string
	MediaURL    string
	ExpiresAt   int64
}
