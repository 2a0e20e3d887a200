package ipmb

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport classifies failures of the remote call itself.
	ErrTransport = errors.New("ipmb transport error")
	// ErrProtocol classifies malformed or short responses.
	ErrProtocol = errors.New("ipmb protocol error")
)

// TransportError reports a rejected request: a bus method error, a non-zero
// bridge status or a non-zero IPMI completion code.
type TransportError struct {
	// Status is the bridge status, when the bridge answered.
	Status int32
	// CompletionCode is the IPMI completion code, when the target answered.
	CompletionCode uint8
	// Err is the underlying bus error, if any.
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ipmb request failed: %v", e.Err)
	}

	return fmt.Sprintf("ipmb request failed: status %d, completion code 0x%02x", e.Status, e.CompletionCode)
}

// Is matches ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// Unwrap returns the underlying bus error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a reply that cannot be interpreted.
type ProtocolError struct {
	// Reason describes what was wrong with the reply.
	Reason string
	// Err is the decoding error, if any.
	Err error
}

// Error implements error.
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed ipmb response: %s: %v", e.Reason, e.Err)
	}

	return "malformed ipmb response: " + e.Reason
}

// Is matches ErrProtocol.
func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// Unwrap returns the decoding error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}
