package status

import (
	"errors"
	"fmt"
	"slices"
)

// Status is the delivery state of a persisted message.
type Status string

const (
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Read      Status = "read"
)

// ErrRegression is returned when a transition would move a message backwards.
var ErrRegression = errors.New("status regression")

// validTransitions defines allowed forward moves. A message may skip
// delivered when the receiver reads it before a live delivery happened.
var validTransitions = map[Status][]Status{
	Sent:      {Delivered, Read},
	Delivered: {Read},
	Read:      {},
}

// Parse converts a stored value into a Status.
func Parse(s string) (Status, error) {
	st := Status(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("unknown message status %q", s)
	}
	return st, nil
}

// CanAdvance reports whether a message in state from may move to state to.
func CanAdvance(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Advance validates a transition. Re-applying the current state is a no-op
// and returns from unchanged with a nil error.
func Advance(from, to Status) (Status, error) {
	if from == to {
		return from, nil
	}
	if !CanAdvance(from, to) {
		return from, fmt.Errorf("%w: %s to %s", ErrRegression, from, to)
	}
	return to, nil
}

// Predecessors returns every state that may transition into to, in
// progression order. Stores use it to build conditional updates so a
// concurrent writer can never move a row backwards.
func Predecessors(to Status) []Status {
	var out []Status
	for _, from := range []Status{Sent, Delivered, Read} {
		if CanAdvance(from, to) {
			out = append(out, from)
		}
	}
	return out
}
