package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/matheus3301/chatd/internal/delivery"
	"github.com/matheus3301/chatd/internal/event"
)

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	file, done, err := a.form(w, r, &req)
	defer done()
	if err != nil {
		a.badRequest(w, err.Error())
		return
	}

	msg, err := a.svc.Router.Send(r.Context(), delivery.SendRequest{
		SenderID:   userID(r),
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		Media:      file,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, response{Message: "Message sent", Data: event.MessageFromStore(msg)})
}

func (a *API) conversations(w http.ResponseWriter, r *http.Request) {
	convs, err := a.svc.Router.Conversations(r.Context(), userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Conversations fetched", Data: event.ConversationsFromStore(convs)})
}

func (a *API) messages(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.svc.Receipts.OpenConversation(r.Context(), userID(r), mux.Vars(r)["conversationId"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Messages fetched", Data: event.MessagesFromStore(msgs)})
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds"`
}

type markReadResult struct {
	Updated []string `json:"updated"`
}

func (a *API) markRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, errMalformed.Error())
		return
	}
	if len(req.MessageIDs) == 0 {
		a.badRequest(w, "messageIds is required")
		return
	}

	marks, err := a.svc.Receipts.MarkRead(r.Context(), userID(r), req.MessageIDs)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := markReadResult{Updated: make([]string, 0, len(marks))}
	for _, m := range marks {
		out.Updated = append(out.Updated, m.MessageID)
	}
	writeJSON(w, http.StatusOK, response{Message: "Messages marked as read", Data: out})
}

func (a *API) deleteMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := a.svc.Router.Delete(r.Context(), userID(r), mux.Vars(r)["messageId"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{
		Message: "Message deleted",
		Data:    event.Deleted{MessageID: msg.ID, ConversationID: msg.ConversationID},
	})
}

func (a *API) userStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Presence.Status(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "User status fetched", Data: st})
}
