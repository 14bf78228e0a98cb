package receipt

import (
	"context"
	"errors"
	"testing"

	"github.com/matheus3301/chatd/internal/event"
	"github.com/matheus3301/chatd/internal/registry"
	"github.com/matheus3301/chatd/internal/registry/registrytest"
	"github.com/matheus3301/chatd/internal/status"
	"github.com/matheus3301/chatd/internal/store"
	"github.com/matheus3301/chatd/internal/store/storetest"
)

func send(t *testing.T, db *store.DB, from, to, body string) *store.MessageView {
	t.Helper()
	m, err := db.CreateMessage(context.Background(), store.NewMessage{SenderID: from, ReceiverID: to, Content: body})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// B opens the conversation; everything addressed to B becomes
// read, unread resets and A hears about each message.
func TestOpenConversation(t *testing.T) {
	db := storetest.New(t)
	reg := registry.New()
	a := registrytest.NewConn("a")
	reg.Register("A", a)
	s := New(db, reg, nil, nil)
	ctx := context.Background()

	m1 := send(t, db, "A", "B", "one")
	delivered := send(t, db, "A", "B", "two")
	if _, err := db.AdvanceStatus(ctx, delivered.ID, status.Delivered); err != nil {
		t.Fatal(err)
	}
	reply := send(t, db, "B", "A", "three")

	msgs, err := s.OpenConversation(ctx, "B", m1.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	for _, m := range msgs {
		want := status.Read
		if m.ID == reply.ID {
			want = status.Sent
		}
		if m.Status != want {
			t.Errorf("%s: status = %q, want %q", m.Content, m.Status, want)
		}
	}

	conv, _ := db.GetConversation(ctx, m1.ConversationID)
	if conv.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", conv.UnreadCount)
	}
	if n := len(a.Named(event.MessageStatusUpdate)); n != 2 {
		t.Errorf("A got %d updates, want 2", n)
	}

	// Opening again is idempotent: no further events.
	if _, err := s.OpenConversation(ctx, "B", m1.ConversationID); err != nil {
		t.Fatal(err)
	}
	if n := len(a.Named(event.MessageStatusUpdate)); n != 2 {
		t.Errorf("A got %d updates after reopen, want 2", n)
	}
}

func TestOpenConversationErrors(t *testing.T) {
	db := storetest.New(t)
	s := New(db, registry.New(), nil, nil)
	ctx := context.Background()
	m := send(t, db, "A", "B", "hi")

	if _, err := s.OpenConversation(ctx, "B", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	_, err := s.OpenConversation(ctx, "C", m.ConversationID)
	if !errors.Is(err, ErrNotParticipant) || !errors.Is(err, store.ErrNotAuthorized) {
		t.Errorf("err = %v, want ErrNotParticipant", err)
	}
	if errors.Is(err, store.ErrNotFound) {
		t.Error("not-participant must be distinct from not-found")
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	db := storetest.New(t)
	reg := registry.New()
	a := registrytest.NewConn("a")
	reg.Register("A", a)
	s := New(db, reg, nil, nil)
	ctx := context.Background()

	m1 := send(t, db, "A", "B", "one")
	m2 := send(t, db, "A", "B", "two")

	marks, err := s.MarkRead(ctx, "B", []string{m1.ID, m2.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(marks) != 2 {
		t.Fatalf("marks = %d, want 2", len(marks))
	}
	if _, err := s.MarkRead(ctx, "B", []string{m1.ID, m2.ID}); err != nil {
		t.Fatal(err)
	}

	reads := a.Named(event.MessageRead)
	if len(reads) != 2 {
		t.Errorf("A got %d message_read, want 2 (no duplicates)", len(reads))
	}
	for _, r := range reads {
		if r.Data.(event.MessageStatus).Status != "read" {
			t.Errorf("payload = %+v", r.Data)
		}
	}
}

// Only the receiver can mark a message read.
func TestMarkReadIgnoresNonReceiver(t *testing.T) {
	db := storetest.New(t)
	s := New(db, registry.New(), nil, nil)
	ctx := context.Background()
	m := send(t, db, "A", "B", "one")

	marks, err := s.MarkReadLive(ctx, "A", []string{m.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(marks) != 0 {
		t.Errorf("sender marked own message read: %+v", marks)
	}
	got, _ := db.GetMessage(ctx, m.ID)
	if got.Status != status.Sent {
		t.Errorf("status = %q, want sent", got.Status)
	}
}

func TestMarkReadLiveEventName(t *testing.T) {
	db := storetest.New(t)
	reg := registry.New()
	a := registrytest.NewConn("a")
	reg.Register("A", a)
	s := New(db, reg, nil, nil)
	m := send(t, db, "A", "B", "one")

	if _, err := s.MarkReadLive(context.Background(), "B", []string{m.ID}); err != nil {
		t.Fatal(err)
	}
	if len(a.Named(event.MessageStatusUpdate)) != 1 || len(a.Named(event.MessageRead)) != 0 {
		t.Errorf("events = %+v", a.Events())
	}
}
