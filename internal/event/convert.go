package event

import (
	"time"

	"github.com/matheus3301/chatd/internal/store"
)

func participantFromStore(p store.Participant) Participant {
	return Participant{ID: p.ID, Username: p.Username, ProfilePicture: p.ProfilePicture}
}

func participantsFromStore(ps []store.Participant) []Participant {
	out := make([]Participant, 0, len(ps))
	for _, p := range ps {
		out = append(out, participantFromStore(p))
	}
	return out
}

// ReactionsFromStore converts stored reactions into their wire form. The
// result is never nil.
func ReactionsFromStore(rs []store.Reaction) []Reaction {
	out := make([]Reaction, 0, len(rs))
	for _, r := range rs {
		out = append(out, Reaction{UserID: r.UserID, Username: r.Username, Emoji: r.Emoji})
	}
	return out
}

func messageFromStore(m *store.Message, sender, receiver Participant, reactions []store.Reaction) Message {
	return Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         sender,
		Receiver:       receiver,
		Content:        m.Content,
		ContentType:    m.ContentType,
		MediaURL:       m.MediaURL,
		Status:         string(m.Status),
		Reactions:      ReactionsFromStore(reactions),
		Version:        m.Version,
		CreatedAt:      time.UnixMilli(m.CreatedAt).UTC(),
	}
}

// MessageFromStore converts a resolved message into its wire form.
func MessageFromStore(v *store.MessageView) Message {
	return messageFromStore(&v.Message, participantFromStore(v.Sender), participantFromStore(v.Receiver), v.Reactions)
}

// MessagesFromStore converts a message list. The result is never nil.
func MessagesFromStore(vs []store.MessageView) []Message {
	out := make([]Message, 0, len(vs))
	for i := range vs {
		out = append(out, MessageFromStore(&vs[i]))
	}
	return out
}

// ConversationFromStore converts a conversation listing row.
func ConversationFromStore(v *store.ConversationView) Conversation {
	c := Conversation{
		ID:           v.ID,
		Participants: participantsFromStore(v.Participants),
		UnreadCount:  v.UnreadCount,
		UpdatedAt:    time.UnixMilli(v.UpdatedAt).UTC(),
	}
	if v.LastMessage != nil {
		lm := v.LastMessage
		m := messageFromStore(lm, findParticipant(c.Participants, lm.SenderID), findParticipant(c.Participants, lm.ReceiverID), nil)
		c.LastMessage = &m
	}
	return c
}

func findParticipant(ps []Participant, id string) Participant {
	for _, p := range ps {
		if p.ID == id {
			return p
		}
	}
	return Participant{ID: id}
}

// ConversationsFromStore converts a conversation list. The result is never nil.
func ConversationsFromStore(vs []store.ConversationView) []Conversation {
	out := make([]Conversation, 0, len(vs))
	for i := range vs {
		out = append(out, ConversationFromStore(&vs[i]))
	}
	return out
}

// StatusFromStore converts a status update.
func StatusFromStore(s *store.StatusUpdate) Status {
	return Status{
		ID:          s.ID,
		User:        participantFromStore(s.Owner),
		Content:     s.Content,
		ContentType: s.ContentType,
		MediaURL:    s.MediaURL,
		Viewers:     participantsFromStore(s.Viewers),
		CreatedAt:   time.UnixMilli(s.CreatedAt).UTC(),
		ExpiresAt:   time.UnixMilli(s.ExpiresAt).UTC(),
	}
}

// StatusesFromStore converts a status list. The result is never nil.
func StatusesFromStore(ss []store.StatusUpdate) []Status {
	out := make([]Status, 0, len(ss))
	for i := range ss {
		out = append(out, StatusFromStore(&ss[i]))
	}
	return out
}
