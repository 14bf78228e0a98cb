package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/delivery"
	"github.com/matheus3301/chatd/internal/event"
	"github.com/matheus3301/chatd/internal/keylock"
	"github.com/matheus3301/chatd/internal/presence"
	"github.com/matheus3301/chatd/internal/receipt"
	"github.com/matheus3301/chatd/internal/registry"
	"github.com/matheus3301/chatd/internal/registry/registrytest"
	"github.com/matheus3301/chatd/internal/statusfeed"
	"github.com/matheus3301/chatd/internal/store"
	"github.com/matheus3301/chatd/internal/store/storetest"
)

type harness struct {
	db       *store.DB
	reg      *registry.Registry
	verifier *auth.Verifier
	srv      *httptest.Server
}

func newHarness(t *testing.T, origins ...string) *harness {
	t.Helper()
	db := storetest.New(t)
	reg := registry.New()
	svc := Services{
		Router:   delivery.New(db, reg, nil, nil, nil),
		Receipts: receipt.New(db, reg, nil, nil),
		Feed:     statusfeed.New(db, reg, nil, 0, nil, nil),
		Presence: presence.New(reg, db, keylock.New(), nil, nil),
		Profiles: db,
	}
	h := &harness{db: db, reg: reg, verifier: auth.NewVerifier("http-test-secret")}
	api := New(svc, h.verifier, Options{AllowedOrigins: origins}, nil)
	h.srv = httptest.NewServer(api.Handler(nil, nil))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) do(t *testing.T, user, method, path string, body io.Reader, contentType string) (*http.Response, response) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != "" {
		token, err := h.verifier.Issue(user, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: token})
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out response
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		var generic struct {
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data"`
			Code    string          `json:"code"`
		}
		if err := json.Unmarshal(raw, &generic); err == nil {
			out = response{Message: generic.Message, Data: generic.Data, Code: generic.Code}
		}
	}
	return resp, out
}

func (h *harness) call(t *testing.T, user, method, path string, body any) (*http.Response, response) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	return h.do(t, user, method, path, r, "application/json")
}

func decode[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	raw, ok := r.Data.(json.RawMessage)
	if !ok {
		t.Fatalf("response has no data: %+v", r)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func multipartBody(t *testing.T, fields map[string]string, fileName, contentType string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileName != "" {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="media"; filename="`+fileName+`"`)
		hdr.Set("Content-Type", contentType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHealthzIsPublic(t *testing.T) {
	h := newHarness(t)
	resp, _ := h.do(t, "", http.MethodGet, "/healthz", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestRoutesRequireAuth(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/api/chat/conversations", "/api/status", "/api/users/A/status"} {
		resp, _ := h.do(t, "", http.MethodGet, path, nil, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestBearerToken(t *testing.T) {
	h := newHarness(t)
	token, _ := h.verifier.Issue("A", time.Hour)
	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/api/chat/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestSendFetchAndRead(t *testing.T) {
	h := newHarness(t)
	sender := registrytest.NewConn("a")
	h.reg.Register("A", sender)

	resp, body := h.call(t, "A", http.MethodPost, "/api/chat/send-message", sendMessageRequest{ReceiverID: "B", Content: "hi"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send status = %d (%+v)", resp.StatusCode, body)
	}
	msg := decode[event.Message](t, body)
	if msg.Status != "sent" || msg.Sender.ID != "A" {
		t.Errorf("message = %+v", msg)
	}

	_, body = h.call(t, "B", http.MethodGet, "/api/chat/conversations", nil)
	convs := decode[[]event.Conversation](t, body)
	if len(convs) != 1 || convs[0].UnreadCount != 1 || convs[0].LastMessage == nil {
		t.Fatalf("conversations = %+v", convs)
	}

	resp, body = h.call(t, "B", http.MethodGet, "/api/chat/messages/"+convs[0].ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("messages status = %d", resp.StatusCode)
	}
	if msgs := decode[[]event.Message](t, body); len(msgs) != 1 {
		t.Errorf("messages = %+v", msgs)
	}

	conv, err := h.db.GetConversation(context.Background(), convs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if conv.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", conv.UnreadCount)
	}
	if ups := sender.Named(event.MessageStatusUpdate); len(ups) != 1 {
		t.Errorf("sender status updates = %d, want 1", len(ups))
	}
}

func TestMessagesAccess(t *testing.T) {
	h := newHarness(t)
	m, err := h.db.CreateMessage(context.Background(), store.NewMessage{SenderID: "A", ReceiverID: "B", Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	resp, _ := h.call(t, "C", http.MethodGet, "/api/chat/messages/"+m.ConversationID, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("outsider status = %d, want 403", resp.StatusCode)
	}
	resp, _ = h.call(t, "A", http.MethodGet, "/api/chat/messages/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", resp.StatusCode)
	}
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)

	resp, body := h.call(t, "A", http.MethodPost, "/api/chat/send-message", sendMessageRequest{ReceiverID: "B"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty status = %d, want 400", resp.StatusCode)
	}
	if body.Code != "invalid_request" {
		t.Errorf("code = %q", body.Code)
	}

	r, ct := multipartBody(t, map[string]string{"receiverId": "B"}, "a.zip", "application/zip", []byte("zip"))
	resp, body = h.do(t, "A", http.MethodPost, "/api/chat/send-message", r, ct)
	if resp.StatusCode != http.StatusBadRequest || body.Message != "Unsupported file type" {
		t.Errorf("unsupported = %d %+v", resp.StatusCode, body)
	}

	// No uploader is configured, so a valid image fails upstream.
	r, ct = multipartBody(t, map[string]string{"receiverId": "B"}, "a.png", "image/png", []byte("png"))
	resp, _ = h.do(t, "A", http.MethodPost, "/api/chat/send-message", r, ct)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("upload failure status = %d, want 502", resp.StatusCode)
	}

	if n := storetest.Count(t, h.db, "messages"); n != 0 {
		t.Errorf("messages = %d, want 0", n)
	}
	if n := storetest.Count(t, h.db, "conversations"); n != 0 {
		t.Errorf("conversations = %d, want 0", n)
	}
}

func TestMarkRead(t *testing.T) {
	h := newHarness(t)
	sender := registrytest.NewConn("a")
	h.reg.Register("A", sender)
	m, err := h.db.CreateMessage(context.Background(), store.NewMessage{SenderID: "A", ReceiverID: "B", Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	resp, body := h.call(t, "B", http.MethodPost, "/api/chat/mark-read", markReadRequest{MessageIDs: []string{m.ID}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := decode[markReadResult](t, body); len(got.Updated) != 1 || got.Updated[0] != m.ID {
		t.Errorf("updated = %+v", got)
	}
	if reads := sender.Named(event.MessageRead); len(reads) != 1 {
		t.Errorf("message_read events = %d, want 1", len(reads))
	}

	// Already read: no new event.
	_, body = h.call(t, "B", http.MethodPost, "/api/chat/mark-read", markReadRequest{MessageIDs: []string{m.ID}})
	if got := decode[markReadResult](t, body); len(got.Updated) != 0 {
		t.Errorf("second updated = %+v", got)
	}
	if reads := sender.Named(event.MessageRead); len(reads) != 1 {
		t.Errorf("message_read events = %d, want 1", len(reads))
	}

	resp, _ = h.call(t, "B", http.MethodPost, "/api/chat/mark-read", markReadRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty ids status = %d, want 400", resp.StatusCode)
	}

	// More ids than SQLite binds in one statement.
	m2, err := h.db.CreateMessage(context.Background(), store.NewMessage{SenderID: "A", ReceiverID: "B", Content: "again"})
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 0, 40_001)
	for i := 0; i < 40_000; i++ {
		ids = append(ids, fmt.Sprintf("missing-%d", i))
	}
	ids = append(ids, m2.ID)
	resp, body = h.call(t, "B", http.MethodPost, "/api/chat/mark-read", markReadRequest{MessageIDs: ids})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("large batch status = %d", resp.StatusCode)
	}
	if got := decode[markReadResult](t, body); len(got.Updated) != 1 || got.Updated[0] != m2.ID {
		t.Errorf("large batch updated = %+v", got)
	}
}

func TestDeleteMessage(t *testing.T) {
	h := newHarness(t)
	receiver := registrytest.NewConn("b")
	h.reg.Register("B", receiver)
	m, err := h.db.CreateMessage(context.Background(), store.NewMessage{SenderID: "A", ReceiverID: "B", Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}

	resp, _ := h.call(t, "B", http.MethodDelete, "/api/chat/message/"+m.ID, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-sender status = %d, want 403", resp.StatusCode)
	}
	resp, _ = h.call(t, "A", http.MethodDelete, "/api/chat/message/"+m.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("sender status = %d, want 200", resp.StatusCode)
	}
	if dels := receiver.Named(event.MessageDeleted); len(dels) != 1 {
		t.Errorf("message_deleted events = %d, want 1", len(dels))
	}
	resp, _ = h.call(t, "A", http.MethodDelete, "/api/chat/message/"+m.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("repeat status = %d, want 404", resp.StatusCode)
	}
}

func TestStatusLifecycle(t *testing.T) {
	h := newHarness(t)
	owner := registrytest.NewConn("a")
	h.reg.Register("A", owner)

	r, ct := multipartBody(t, map[string]string{"content": "morning"}, "", "", nil)
	resp, body := h.do(t, "A", http.MethodPost, "/api/status", r, ct)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d (%+v)", resp.StatusCode, body)
	}
	st := decode[event.Status](t, body)
	if st.Content != "morning" || st.User.ID != "A" {
		t.Errorf("status = %+v", st)
	}

	_, body = h.call(t, "B", http.MethodGet, "/api/status", nil)
	if list := decode[[]event.Status](t, body); len(list) != 1 {
		t.Fatalf("list = %+v", list)
	}

	for i := 0; i < 2; i++ {
		resp, _ = h.call(t, "B", http.MethodPut, "/api/status/"+st.ID+"/view", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("view status = %d", resp.StatusCode)
		}
	}
	if views := owner.Named(event.StatusViewed); len(views) != 1 {
		t.Errorf("status_viewed events = %d, want 1", len(views))
	}

	resp, _ = h.call(t, "B", http.MethodDelete, "/api/status/"+st.ID, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-owner delete = %d, want 403", resp.StatusCode)
	}
	resp, _ = h.call(t, "A", http.MethodDelete, "/api/status/"+st.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("owner delete = %d, want 200", resp.StatusCode)
	}

	resp, _ = h.call(t, "A", http.MethodPost, "/api/status", createStatusRequest{Content: " "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty status = %d, want 400", resp.StatusCode)
	}
}

func TestUserStatus(t *testing.T) {
	h := newHarness(t)
	h.reg.Register("B", registrytest.NewConn("b"))

	_, body := h.call(t, "A", http.MethodGet, "/api/users/B/status", nil)
	if p := decode[event.Presence](t, body); !p.IsOnline {
		t.Errorf("B presence = %+v", p)
	}
	_, body = h.call(t, "A", http.MethodGet, "/api/users/Z/status", nil)
	if p := decode[event.Presence](t, body); p.IsOnline || p.LastSeen != nil {
		t.Errorf("Z presence = %+v", p)
	}
}

// A profile reports presence from live connections, not from an online
// flag a previous process left in the store.
func TestProfilePresence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000)
	if err := h.db.SetPresence(ctx, "A", true, at); err != nil {
		t.Fatal(err)
	}

	_, body := h.call(t, "B", http.MethodGet, "/api/users/A", nil)
	p := decode[profile](t, body)
	if p.IsOnline {
		t.Error("profile online without a live connection")
	}
	if p.LastSeen == nil || !p.LastSeen.Equal(at) {
		t.Errorf("last seen = %v, want %v", p.LastSeen, at)
	}
	_, body = h.call(t, "B", http.MethodGet, "/api/users/A/status", nil)
	if st := decode[event.Presence](t, body); st.IsOnline != p.IsOnline {
		t.Errorf("status online = %v, profile online = %v", st.IsOnline, p.IsOnline)
	}

	h.reg.Register("A", registrytest.NewConn("a"))
	_, body = h.call(t, "B", http.MethodGet, "/api/users/A", nil)
	if p := decode[profile](t, body); !p.IsOnline {
		t.Error("profile offline while connected")
	}
}

func TestCORS(t *testing.T) {
	h := newHarness(t, "https://app.example")

	req, _ := http.NewRequest(http.MethodOptions, h.srv.URL+"/api/chat/conversations", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allow origin = %q", got)
	}

	req, _ = http.NewRequest(http.MethodGet, h.srv.URL+"/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got %q", got)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "json") {
		t.Errorf("content type = %q", resp.Header.Get("Content-Type"))
	}
}

func TestProfile(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.call(t, "A", http.MethodPut, "/api/users/me", profileRequest{Username: "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank username status = %d, want 400", resp.StatusCode)
	}

	resp, body := h.call(t, "A", http.MethodPut, "/api/users/me", profileRequest{Username: "Amy", ProfilePicture: "amy.png"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d (%+v)", resp.StatusCode, body)
	}
	if p := decode[profile](t, body); p.ID != "A" || p.Username != "Amy" {
		t.Errorf("profile = %+v", p)
	}

	_, body = h.call(t, "B", http.MethodGet, "/api/users/A", nil)
	if p := decode[profile](t, body); p.ProfilePicture != "amy.png" {
		t.Errorf("fetched profile = %+v", p)
	}

	resp, _ = h.call(t, "B", http.MethodGet, "/api/users/ghost", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", resp.StatusCode)
	}

	// Messages resolve the sender's display fields.
	if _, err := h.db.CreateMessage(context.Background(), store.NewMessage{SenderID: "A", ReceiverID: "B", Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	_, body = h.call(t, "B", http.MethodGet, "/api/chat/conversations", nil)
	convs := decode[[]event.Conversation](t, body)
	if len(convs) != 1 || convs[0].LastMessage == nil || convs[0].LastMessage.Sender.Username != "Amy" {
		t.Errorf("conversations = %+v", convs)
	}
}
