package store

import "errors"

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthorized is returned when the requester does not own the row
	// it tries to mutate. It is independent of ErrNotFound.
	ErrNotAuthorized = errors.New("not authorized")
)
