package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/matheus3301/chatd/internal/event"
)

type createStatusRequest struct {
	Content string `json:"content"`
}

func (a *API) createStatus(w http.ResponseWriter, r *http.Request) {
	var req createStatusRequest
	file, done, err := a.form(w, r, &req)
	defer done()
	if err != nil {
		a.badRequest(w, err.Error())
		return
	}

	st, err := a.svc.Feed.Create(r.Context(), userID(r), req.Content, file)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, response{Message: "Status created", Data: event.StatusFromStore(st)})
}

func (a *API) listStatuses(w http.ResponseWriter, r *http.Request) {
	sts, err := a.svc.Feed.ListActive(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Statuses fetched", Data: event.StatusesFromStore(sts)})
}

func (a *API) viewStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Feed.View(r.Context(), mux.Vars(r)["statusId"], userID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Status viewed", Data: event.StatusFromStore(st)})
}

func (a *API) deleteStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["statusId"]
	if err := a.svc.Feed.Delete(r.Context(), id, userID(r)); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Status deleted", Data: event.StatusRef{StatusID: id}})
}
