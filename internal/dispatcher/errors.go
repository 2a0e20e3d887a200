package dispatcher

import (
	"errors"
	"fmt"
)

// ErrAlreadyArmed is returned when a line already has an outstanding wait or is being handled.
var ErrAlreadyArmed = errors.New("line already armed")

// WaitError reports a failed readiness wait. Monitoring of the line stops.
type WaitError struct {
	// Line is the label of the affected line.
	Line string
	// Err is the error reported by the wait.
	Err error
}

// Error implements error.
func (e *WaitError) Error() string {
	return fmt.Sprintf("%s: readiness wait failed: %v", e.Line, e.Err)
}

// Unwrap returns the wait error.
func (e *WaitError) Unwrap() error {
	return e.Err
}

// DecodeError reports a ready descriptor whose event could not be read.
// The event is lost and monitoring of the line stops.
type DecodeError struct {
	// Line is the label of the affected line.
	Line string
	// Err is the decoding error.
	Err error
}

// Error implements error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: failed to read line event: %v", e.Line, e.Err)
}

// Unwrap returns the decoding error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
