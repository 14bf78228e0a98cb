// Package delivery creates messages and routes them to the receiver's live
// connection, advancing their status as delivery is observed.
package delivery

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/event"
	"github.com/matheus3301/chatd/internal/media"
	"github.com/matheus3301/chatd/internal/status"
	"github.com/matheus3301/chatd/internal/store"
)

var (
	// ErrMissingParticipant is returned when the sender or receiver is empty.
	ErrMissingParticipant = errors.New("sender and receiver are required")
	// ErrEmptyMessage is returned for a message with neither content nor media.
	ErrEmptyMessage = errors.New("message content or media is required")
)

// Store is the persistence the router needs.
type Store interface {
	CreateMessage(ctx context.Context, nm store.NewMessage) (*store.MessageView, error)
	AdvanceStatus(ctx context.Context, id string, to status.Status) (bool, error)
	MarkDelivered(ctx context.Context, receiverID string) ([]store.Transition, error)
	DeleteMessage(ctx context.Context, id, requesterID string) (*store.Message, error)
	ListConversations(ctx context.Context, userID string) ([]store.ConversationView, error)
}

// Emitter delivers an event to a user's live connection.
type Emitter interface {
	Emit(userID string, evt event.Event) bool
}

// SendRequest is a message submitted over HTTP or the live channel.
type SendRequest struct {
	SenderID   string
	ReceiverID string
	Content    string
	Media      *media.File
}

// Router owns the send path: validation, upload, persistence and the live
// delivery attempt.
type Router struct {
	store    Store
	emitter  Emitter
	uploader media.Uploader
	bus      *bus.Bus
	logger   *zap.Logger
}

func New(s Store, emitter Emitter, uploader media.Uploader, b *bus.Bus, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{store: s, emitter: emitter, uploader: uploader, bus: b, logger: logger}
}

// Validate checks a request without side effects.
func Validate(req SendRequest) error {
	if req.SenderID == "" || req.ReceiverID == "" {
		return ErrMissingParticipant
	}
	if req.Media == nil && strings.TrimSpace(req.Content) == "" {
		return ErrEmptyMessage
	}
	if req.Media != nil {
		if _, err := media.KindOf(req.Media.ContentType); err != nil {
			return err
		}
	}
	return nil
}

// Send validates, uploads any attachment, persists the message and tries
// live delivery. Nothing is persisted when validation or the upload fails.
// The returned message reflects its status after the delivery attempt.
func (r *Router) Send(ctx context.Context, req SendRequest) (*store.MessageView, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	nm := store.NewMessage{
		SenderID:    req.SenderID,
		ReceiverID:  req.ReceiverID,
		Content:     req.Content,
		ContentType: string(media.KindText),
	}
	if req.Media != nil {
		res, err := media.Store(ctx, r.uploader, *req.Media)
		if err != nil {
			return nil, err
		}
		nm.ContentType = string(res.Kind)
		nm.MediaURL = res.URL
	}

	msg, err := r.store.CreateMessage(ctx, nm)
	if err != nil {
		return nil, err
	}
	r.bus.Publish(bus.NewEvent(bus.KindMessageCreated, event.MessageFromStore(msg)))

	r.deliver(ctx, msg)
	return msg, nil
}

// deliver emits msg to the receiver if connected, then records the
// delivery and tells the sender. An absent receiver leaves the message sent.
func (r *Router) deliver(ctx context.Context, msg *store.MessageView) {
	if r.emitter == nil || !r.emitter.Emit(msg.ReceiverID, event.New(event.ReceiveMessage, event.MessageFromStore(msg))) {
		return
	}

	advanced, err := r.store.AdvanceStatus(ctx, msg.ID, status.Delivered)
	if err != nil {
		r.logger.Warn("mark delivered failed",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}
	if !advanced {
		// Already read by a concurrent path; never move it back.
		return
	}
	msg.Status = status.Delivered
	msg.Version++
	r.notifySender(msg.SenderID, msg.ID, status.Delivered)
}

// CatchUp marks everything that reached receiverID while offline as
// delivered and notifies the online senders.
func (r *Router) CatchUp(ctx context.Context, receiverID string) error {
	marks, err := r.store.MarkDelivered(ctx, receiverID)
	if err != nil {
		return err
	}
	for _, m := range marks {
		r.notifySender(m.SenderID, m.MessageID, status.Delivered)
	}
	if len(marks) > 0 {
		r.logger.Debug("delivered pending messages",
			zap.String("user_id", receiverID),
			zap.Int("count", len(marks)),
		)
	}
	return nil
}

func (r *Router) notifySender(senderID, messageID string, st status.Status) {
	payload := event.MessageStatus{MessageID: messageID, Status: string(st)}
	if r.emitter != nil {
		r.emitter.Emit(senderID, event.New(event.MessageStatusUpdate, payload))
	}
	r.bus.Publish(bus.NewEvent(bus.KindMessageDelivered, payload))
}

// Delete removes a message owned by requesterID and tells the receiver.
func (r *Router) Delete(ctx context.Context, requesterID, messageID string) (*store.Message, error) {
	msg, err := r.store.DeleteMessage(ctx, messageID, requesterID)
	if err != nil {
		return nil, err
	}
	payload := event.Deleted{MessageID: msg.ID, ConversationID: msg.ConversationID}
	if r.emitter != nil && msg.ReceiverID != requesterID {
		r.emitter.Emit(msg.ReceiverID, event.New(event.MessageDeleted, payload))
	}
	r.bus.Publish(bus.NewEvent(bus.KindMessageDeleted, payload))
	return msg, nil
}

// Conversations lists userID's conversations, most recently updated first.
func (r *Router) Conversations(ctx context.Context, userID string) ([]store.ConversationView, error) {
	return r.store.ListConversations(ctx, userID)
}
