// Package apperr maps domain errors to the codes clients see.
package apperr

import (
	"errors"
	"net/http"

	"github.com/matheus3301/chatd/internal/delivery"
	"github.com/matheus3301/chatd/internal/media"
	"github.com/matheus3301/chatd/internal/reaction"
	"github.com/matheus3301/chatd/internal/statusfeed"
	"github.com/matheus3301/chatd/internal/store"
)

// Error codes carried by live-channel error events and HTTP error bodies.
const (
	CodeInvalid      = "invalid_request"
	CodeUnsupported  = "unsupported_media"
	CodeUploadFailed = "upload_failed"
	CodeNotFound     = "not_found"
	CodeForbidden    = "forbidden"
	CodeInternal     = "internal"
)

// Classify returns the client-facing code, HTTP status and message for
// err. Unknown errors get a generic message so internals never leak.
func Classify(err error) (code string, status int, msg string) {
	switch {
	case errors.Is(err, delivery.ErrMissingParticipant),
		errors.Is(err, delivery.ErrEmptyMessage),
		errors.Is(err, statusfeed.ErrEmptyStatus),
		errors.Is(err, reaction.ErrInvalidReaction):
		return CodeInvalid, http.StatusBadRequest, rootMessage(err)
	case errors.Is(err, media.ErrUnsupportedType):
		return CodeUnsupported, http.StatusBadRequest, "Unsupported file type"
	case errors.Is(err, media.ErrUploadFailed):
		return CodeUploadFailed, http.StatusBadGateway, "Failed to upload media"
	case errors.Is(err, store.ErrNotFound):
		return CodeNotFound, http.StatusNotFound, "Not found"
	case errors.Is(err, store.ErrNotAuthorized):
		return CodeForbidden, http.StatusForbidden, "Not authorized"
	}
	return CodeInternal, http.StatusInternalServerError, "Internal server error"
}

func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
