package event

import "time"

// Inbound payloads.

type ConnectPayload struct {
	UserID string `json:"userId"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
}

type SendMessagePayload struct {
	ReceiverID  string `json:"receiverId"`
	Content     string `json:"content"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

type ReadPayload struct {
	MessageIDs []string `json:"messageIds"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type StatusQueryPayload struct {
	UserID string `json:"userId"`
}

// Outbound payloads.

type Presence struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type Typing struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type MessageStatus struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

type MessageSentAck struct {
	ClientMsgID string  `json:"clientMsgId,omitempty"`
	Message     Message `json:"message"`
}

type Deleted struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type Reactions struct {
	MessageID string     `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}

type StatusRef struct {
	StatusID string `json:"statusId"`
}

type StatusView struct {
	StatusID string      `json:"statusId"`
	Viewer   Participant `json:"viewer"`
}

// Resolved entity shapes shared by live events and HTTP responses.

type Participant struct {
	ID             string `json:"id"`
	Username       string `json:"username,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

type Reaction struct {
	UserID   string `json:"user"`
	Username string `json:"username,omitempty"`
	Emoji    string `json:"emoji"`
}

type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	Sender         Participant `json:"sender"`
	Receiver       Participant `json:"receiver"`
	Content        string      `json:"content"`
	ContentType    string      `json:"contentType"`
	MediaURL       string      `json:"mediaUrl,omitempty"`
	Status         string      `json:"status"`
	Reactions      []Reaction  `json:"reactions"`
	Version        int64       `json:"version"`
	CreatedAt      time.Time   `json:"createdAt"`
}

type Conversation struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants"`
	LastMessage  *Message      `json:"lastMessage,omitempty"`
	UnreadCount  int           `json:"unreadCount"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

type Status struct {
	ID          string        `json:"id"`
	User        Participant   `json:"user"`
	Content     string        `json:"content"`
	ContentType string        `json:"contentType"`
	MediaURL    string        `json:"mediaUrl,omitempty"`
	Viewers     []Participant `json:"viewers"`
	CreatedAt   time.Time     `json:"createdAt"`
	ExpiresAt   time.Time     `json:"expiresAt"`
}
