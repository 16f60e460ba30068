package status

import (
	"errors"
	"fmt"
	"slices"
)

// Status is the delivery state of a message.
type Status string

const (
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Read      Status = "read"
)

// ErrUnknown is returned by Parse for values outside sent/delivered/read.
var ErrUnknown = errors.New("unknown message status")

// validTransitions lists, for each status, the statuses that count as forward
// progress from it. Read is terminal.
var validTransitions = map[Status][]Status{
	Sent:      {Delivered, Read},
	Delivered: {Read},
	Read:      {},
}

// Parse converts a provider or stored status string into a Status.
func Parse(s string) (Status, error) {
	st := Status(s)
	if _, ok := validTransitions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknown, s)
	}
	return st, nil
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

// Rank orders statuses sent < delivered < read. Unknown statuses rank 0.
func (s Status) Rank() int {
	switch s {
	case Sent:
		return 1
	case Delivered:
		return 2
	case Read:
		return 3
	default:
		return 0
	}
}

// IsForward reports whether moving from -> to is strictly later in the
// sent -> delivered -> read order.
func IsForward(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Predecessors returns the statuses from which to is forward progress.
func Predecessors(to Status) []Status {
	var out []Status
	for _, from := range []Status{Sent, Delivered, Read} {
		if IsForward(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Change describes an applied status transition.
type Change struct {
	From Status
	To   Status
}
