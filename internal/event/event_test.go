package event

import (
	"encoding/json"
	"testing"

	"github.com/matheus3301/chatd/internal/status"
	"github.com/matheus3301/chatd/internal/store"
)

func TestEnvelopeShape(t *testing.T) {
	b, err := json.Marshal(New(UserTyping, Typing{UserID: "u1", ConversationID: "c1", IsTyping: true}))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"event":"user_typing","data":{"userId":"u1","conversationId":"c1","isTyping":true}}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}

func TestReactionShape(t *testing.T) {
	b, err := json.Marshal(Reactions{MessageID: "m1", Reactions: []Reaction{{UserID: "u1", Emoji: "👍"}}})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"messageId":"m1","reactions":[{"user":"u1","emoji":"👍"}]}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}

func TestInboundDecode(t *testing.T) {
	var in Inbound
	if err := json.Unmarshal([]byte(`{"event":"add_reaction","data":{"messageId":"m1","emoji":"👍"}}`), &in); err != nil {
		t.Fatal(err)
	}
	var p ReactionPayload
	if err := in.Decode(&p); err != nil {
		t.Fatal(err)
	}
	if in.Name != AddReaction || p.MessageID != "m1" || p.Emoji != "👍" {
		t.Errorf("decoded %q %+v", in.Name, p)
	}

	// Missing payload leaves the target untouched.
	empty := Inbound{Name: UserConnected}
	cp := ConnectPayload{UserID: "keep"}
	if err := empty.Decode(&cp); err != nil {
		t.Fatal(err)
	}
	if cp.UserID != "keep" {
		t.Errorf("user id = %q, want keep", cp.UserID)
	}
}

func TestMessageFromStoreNeverNilReactions(t *testing.T) {
	v := &store.MessageView{
		Message: store.Message{ID: "m1", SenderID: "a", ReceiverID: "b", Status: status.Delivered, CreatedAt: 1000},
		Sender:  store.Participant{ID: "a", Username: "Amy"},
	}
	m := MessageFromStore(v)
	if m.Reactions == nil {
		t.Error("reactions should be an empty slice, not nil")
	}
	if m.Status != "delivered" || m.Sender.Username != "Amy" {
		t.Errorf("got %+v", m)
	}
	if m.CreatedAt.UnixMilli() != 1000 {
		t.Errorf("created at = %v", m.CreatedAt)
	}
}
