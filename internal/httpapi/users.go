package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/matheus3301/chatd/internal/store"
)

type profileRequest struct {
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
}

type profile struct {
	ID             string     `json:"id"`
	Username       string     `json:"username,omitempty"`
	ProfilePicture string     `json:"profilePicture,omitempty"`
	IsOnline       bool       `json:"isOnline"`
	LastSeen       *time.Time `json:"lastSeen,omitempty"`
}

// profileOf joins the stored display fields with live presence. The
// persisted online flag is not consulted; the connection registry is the
// only source of truth for who is online.
func (a *API) profileOf(ctx context.Context, u *store.User) (profile, error) {
	st, err := a.svc.Presence.Status(ctx, u.ID)
	if err != nil {
		return profile{}, err
	}
	return profile{
		ID:             u.ID,
		Username:       u.Username,
		ProfilePicture: u.ProfilePicture,
		IsOnline:       st.IsOnline,
		LastSeen:       st.LastSeen,
	}, nil
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, errMalformed.Error())
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		a.badRequest(w, "username is required")
		return
	}

	id := userID(r)
	if err := a.svc.Profiles.UpsertProfile(r.Context(), id, req.Username, req.ProfilePicture); err != nil {
		a.fail(w, r, err)
		return
	}
	u, err := a.svc.Profiles.GetUser(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := a.profileOf(r.Context(), u)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "Profile updated", Data: p})
}

func (a *API) getProfile(w http.ResponseWriter, r *http.Request) {
	u, err := a.svc.Profiles.GetUser(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := a.profileOf(r.Context(), u)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Message: "User fetched", Data: p})
}
