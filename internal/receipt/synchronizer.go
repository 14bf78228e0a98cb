// Package receipt moves messages to read and tells their senders.
package receipt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/event"
	"github.com/matheus3301/chatd/internal/status"
	"github.com/matheus3301/chatd/internal/store"
)

// ErrNotParticipant is returned when a user opens a conversation they are
// not part of.
var ErrNotParticipant = fmt.Errorf("%w: not a conversation participant", store.ErrNotAuthorized)

// Store is the persistence the synchronizer needs.
type Store interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ReadConversation(ctx context.Context, conversationID, receiverID string) ([]store.Transition, error)
	ListMessages(ctx context.Context, conversationID string) ([]store.MessageView, error)
	MarkRead(ctx context.Context, receiverID string, ids []string) ([]store.Transition, error)
}

// Emitter delivers an event to a user's live connection.
type Emitter interface {
	Emit(userID string, evt event.Event) bool
}

type Synchronizer struct {
	store   Store
	emitter Emitter
	bus     *bus.Bus
	logger  *zap.Logger
}

func New(s Store, emitter Emitter, b *bus.Bus, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{store: s, emitter: emitter, bus: b, logger: logger}
}

// OpenConversation returns a conversation's messages for userID after
// marking everything addressed to them as read and resetting the unread
// count. Both writes happen in one transaction.
func (s *Synchronizer) OpenConversation(ctx context.Context, userID, conversationID string) ([]store.MessageView, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}

	marks, err := s.store.ReadConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	s.notify(userID, marks, event.MessageStatusUpdate)
	return msgs, nil
}

// MarkRead marks the given messages read where userID is the receiver and
// sends one message_read per transitioned message to its sender. Messages
// already read produce nothing.
func (s *Synchronizer) MarkRead(ctx context.Context, userID string, ids []string) ([]store.Transition, error) {
	return s.markRead(ctx, userID, ids, event.MessageRead)
}

// MarkReadLive is MarkRead for the live channel, whose clients expect
// message_status_update.
func (s *Synchronizer) MarkReadLive(ctx context.Context, userID string, ids []string) ([]store.Transition, error) {
	return s.markRead(ctx, userID, ids, event.MessageStatusUpdate)
}

func (s *Synchronizer) markRead(ctx context.Context, userID string, ids []string, name string) ([]store.Transition, error) {
	marks, err := s.store.MarkRead(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	s.notify(userID, marks, name)
	return marks, nil
}

func (s *Synchronizer) notify(readerID string, marks []store.Transition, name string) {
	if len(marks) > 0 {
		s.logger.Debug("messages read",
			zap.String("user_id", readerID),
			zap.Int("count", len(marks)),
		)
	}
	for _, m := range marks {
		payload := event.MessageStatus{MessageID: m.MessageID, Status: string(status.Read)}
		if s.emitter != nil && m.SenderID != readerID {
			s.emitter.Emit(m.SenderID, event.New(name, payload))
		}
		s.bus.Publish(bus.NewEvent(bus.KindMessageRead, payload))
	}
}
