package ipmb

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	// Service is the bus name of the IPMB bridge.
	Service = "xyz.openbmc_project.Ipmi.Channel.Ipmb"
	// ObjectPath is the object path of the IPMB bridge.
	ObjectPath dbus.ObjectPath = "/xyz/openbmc_project/Ipmi/Channel/Ipmb"
	// SendRequestMethod is the fully qualified request method.
	SendRequestMethod = "org.openbmc.Ipmb.sendRequest"
)

// Request is one IPMB request.
type Request struct {
	// Host is the target bus address.
	Host uint8
	// NetFn is the network function code.
	NetFn uint8
	// LUN is the logical unit number.
	LUN uint8
	// Cmd is the command code.
	Cmd uint8
	// Payload is the opaque request data.
	Payload []byte
}

// Transport exchanges one request for its response payload.
type Transport interface {
	Send(ctx context.Context, req Request) ([]byte, error)
}

// Caller performs a blocking bus method call.
type Caller interface {
	Call(ctx context.Context, dest string, path dbus.ObjectPath, method string, args ...any) *dbus.Call
}

// DBusTransport sends requests through the IPMB bridge daemon.
type DBusTransport struct {
	// caller is the shared bus connection.
	caller Caller
	// timeout bounds each round trip. Zero means no limit beyond ctx.
	timeout time.Duration
}

// Option configures a DBusTransport.
type Option func(*DBusTransport)

// WithTimeout bounds every request.
func WithTimeout(timeout time.Duration) Option {
	return func(t *DBusTransport) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

// NewDBusTransport creates a transport over the provided bus caller.
func NewDBusTransport(caller Caller, opts ...Option) *DBusTransport {
	t := &DBusTransport{caller: caller}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Send performs the exchange and returns the response data.
func (t *DBusTransport) Send(ctx context.Context, req Request) ([]byte, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	payload := req.Payload
	if payload == nil {
		payload = []byte{}
	}

	call := t.caller.Call(ctx, Service, ObjectPath, SendRequestMethod, req.Host, req.NetFn, req.LUN, req.Cmd, payload)
	if call.Err != nil {
		return nil, &TransportError{Err: call.Err}
	}

	var (
		status                      int32
		netFn, lun, cmd, completion uint8
		data                        []byte
	)

	if err := call.Store(&status, &netFn, &lun, &cmd, &completion, &data); err != nil {
		return nil, &ProtocolError{Reason: "decode reply", Err: err}
	}

	if status != 0 || completion != 0 {
		return nil, &TransportError{Status: status, CompletionCode: completion}
	}

	return data, nil
}

// ByteAt returns resp[offset], failing with a ProtocolError when the response is too short.
func ByteAt(resp []byte, offset int) (byte, error) {
	if offset < 0 || len(resp) <= offset {
		return 0, &ProtocolError{Reason: fmt.Sprintf("response has %d bytes, need at least %d", len(resp), offset+1)}
	}

	return resp[offset], nil
}
