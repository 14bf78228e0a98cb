// Package httpapi is the REST surface: chat, status and presence routes
// behind JWT auth, plus unauthenticated health and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/apperr"
	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/delivery"
	"github.com/matheus3301/chatd/internal/media"
	"github.com/matheus3301/chatd/internal/presence"
	"github.com/matheus3301/chatd/internal/receipt"
	"github.com/matheus3301/chatd/internal/statusfeed"
	"github.com/matheus3301/chatd/internal/store"
)

// Profiles stores user display fields.
type Profiles interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	UpsertProfile(ctx context.Context, id, username, profilePicture string) error
}

// Services are the components the routes call into.
type Services struct {
	Router   *delivery.Router
	Receipts *receipt.Synchronizer
	Feed     *statusfeed.Feed
	Presence *presence.Publisher
	Profiles Profiles
}

type Options struct {
	CookieName     string
	AllowedOrigins []string
	MaxUploadBytes int64
}

// API serves the HTTP routes.
type API struct {
	svc      Services
	verifier *auth.Verifier
	opts     Options
	logger   *zap.Logger
}

func New(svc Services, verifier *auth.Verifier, opts Options, logger *zap.Logger) *API {
	if opts.CookieName == "" {
		opts.CookieName = "auth_token"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{svc: svc, verifier: verifier, opts: opts, logger: logger}
}

// Handler builds the router. ws and metrics may be nil.
func (a *API) Handler(ws http.Handler, metrics http.Handler) http.Handler {
	r := mux.NewRouter()
	r.Use(a.cors)

	r.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
	if ws != nil {
		r.Handle("/ws", ws)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(a.authenticate)

	chat := api.PathPrefix("/chat").Subrouter()
	chat.HandleFunc("/send-message", a.sendMessage).Methods(http.MethodPost)
	chat.HandleFunc("/conversations", a.conversations).Methods(http.MethodGet)
	chat.HandleFunc("/messages/{conversationId}", a.messages).Methods(http.MethodGet)
	chat.HandleFunc("/mark-read", a.markRead).Methods(http.MethodPost)
	chat.HandleFunc("/message/{messageId}", a.deleteMessage).Methods(http.MethodDelete)

	api.HandleFunc("/status", a.createStatus).Methods(http.MethodPost)
	api.HandleFunc("/status", a.listStatuses).Methods(http.MethodGet)
	api.HandleFunc("/status/{statusId}/view", a.viewStatus).Methods(http.MethodPut)
	api.HandleFunc("/status/{statusId}", a.deleteStatus).Methods(http.MethodDelete)

	api.HandleFunc("/users/me", a.updateProfile).Methods(http.MethodPut)
	api.HandleFunc("/users/{userId}", a.getProfile).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}/status", a.userStatus).Methods(http.MethodGet)

	// Preflight requests never reach a route with a matching method.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func (a *API) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := a.verifier.Verify(auth.TokenFromRequest(r, a.opts.CookieName))
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, response{Message: "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), claims.UserID)))
	})
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (len(a.opts.AllowedOrigins) == 0 || slices.Contains(a.opts.AllowedOrigins, origin)) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Add("Vary", "Origin")
		}
		next.ServeHTTP(w, r)
	})
}

// response is the body shape of every API reply.
type response struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, status, msg := apperr.Classify(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, response{Message: msg, Code: code})
}

func (a *API) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, response{Message: msg, Code: apperr.CodeInvalid})
}

func userID(r *http.Request) string {
	id, _ := auth.UserFrom(r.Context())
	return id
}

// form reads a JSON or multipart body into fields, returning the optional
// "media" file part. The caller must close the returned closer.
func (a *API) form(w http.ResponseWriter, r *http.Request, fields any) (*media.File, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, a.opts.MaxUploadBytes)).Decode(fields); err != nil {
			return nil, noop, errMalformed
		}
		return nil, noop, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(a.opts.MaxUploadBytes); err != nil {
		return nil, noop, errMalformed
	}
	values := make(map[string]string, len(r.MultipartForm.Value))
	for k, v := range r.MultipartForm.Value {
		if len(v) > 0 {
			values[k] = v[0]
		}
	}
	raw, _ := json.Marshal(values)
	if err := json.Unmarshal(raw, fields); err != nil {
		return nil, noop, errMalformed
	}

	cleanup := func() { _ = r.MultipartForm.RemoveAll() }
	fh := firstFile(r.MultipartForm, "media")
	if fh == nil {
		return nil, cleanup, nil
	}
	body, err := fh.Open()
	if err != nil {
		return nil, cleanup, errMalformed
	}
	file := &media.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        body,
	}
	return file, func() {
		_ = body.Close()
		cleanup()
	}, nil
}

var errMalformed = errors.New("malformed request body")

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	if files := form.File[field]; len(files) > 0 {
		return files[0]
	}
	return nil
}
