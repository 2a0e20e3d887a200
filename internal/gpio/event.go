package gpio

import (
	"errors"
	"time"
)

// Edge is the direction of a line transition.
type Edge int

const (
	// EdgeRising is a low-to-high transition.
	EdgeRising Edge = iota + 1
	// EdgeFalling is a high-to-low transition.
	EdgeFalling
)

// ErrUnknownEdge is returned when the kernel reports an event id we do not handle.
var ErrUnknownEdge = errors.New("unknown edge event")

// String returns "rising" or "falling".
func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	default:
		return "unknown"
	}
}

// State returns the log wording for the edge: Asserted for rising, Deasserted otherwise.
func (e Edge) State() string {
	if e == EdgeRising {
		return "Asserted"
	}

	return "Deasserted"
}

// Event is one decoded edge event.
type Event struct {
	// Edge is the transition direction.
	Edge Edge
	// Timestamp is the kernel timestamp of the event.
	Timestamp time.Duration
	// Seqno is the sequence number of the event on its line.
	Seqno uint32
}
