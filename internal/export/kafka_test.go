package export

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/matheus3301/chatd/internal/bus"
	"github.com/matheus3301/chatd/internal/event"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestEncode(t *testing.T) {
	evt := bus.NewEvent(bus.KindMessageRead, event.MessageStatus{MessageID: "m1", Status: "read"})
	msg, err := encode(evt)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Key) != bus.KindMessageRead {
		t.Errorf("key = %q", msg.Key)
	}
	var rec struct {
		Kind    string            `json:"kind"`
		Payload map[string]string `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.Kind != bus.KindMessageRead || rec.Payload["messageId"] != "m1" {
		t.Errorf("record = %+v", rec)
	}
}

func TestExporterForwardsBusEvents(t *testing.T) {
	b := bus.New()
	w := &fakeWriter{}
	e := New(w, b, nil)
	e.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for w.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no message exported")
		}
		b.Publish(bus.NewEvent(bus.KindPresenceOnline, event.Presence{UserID: "u"}))
		time.Sleep(10 * time.Millisecond)
	}

	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	if !w.closed {
		t.Error("writer not closed on Stop")
	}
}
