package ipmb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"
)

// fakeCaller returns a canned call and records the request arguments.
type fakeCaller struct {
	call     *dbus.Call
	dest     string
	method   string
	args     []any
	deadline bool
}

func (f *fakeCaller) Call(ctx context.Context, dest string, _ dbus.ObjectPath, method string, args ...any) *dbus.Call {
	f.dest, f.method, f.args = dest, method, args
	_, f.deadline = ctx.Deadline()

	return f.call
}

// reply builds a bridge reply with the given status, completion code and data.
func reply(status int32, completion uint8, data []byte) *dbus.Call {
	return &dbus.Call{Body: []any{status, uint8(0x39), uint8(0), uint8(0x03), completion, data}}
}

// TestSend_ReturnsData verifies a successful exchange returns the response payload.
func TestSend_ReturnsData(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{call: reply(0, 0, []byte{0x15, 0xa0, 0x00, 0x03})}
	transport := NewDBusTransport(caller, WithTimeout(time.Second))

	data, err := transport.Send(context.Background(), Request{
		Host:    1,
		NetFn:   0x38,
		Cmd:     0x03,
		Payload: []byte{0x15, 0xa0, 0x00},
	})
	require.NoError(t, err)
	require.Equal(t, []byte{0x15, 0xa0, 0x00, 0x03}, data)

	require.Equal(t, Service, caller.dest)
	require.Equal(t, SendRequestMethod, caller.method)
	require.Equal(t, []any{uint8(1), uint8(0x38), uint8(0), uint8(0x03), []byte{0x15, 0xa0, 0x00}}, caller.args)
	require.True(t, caller.deadline)
}

// TestSend_TransportErrors checks method errors, bridge status and completion codes.
func TestSend_TransportErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]*dbus.Call{
		"method error":    {Err: errors.New("no such service")},
		"bridge status":   reply(-1, 0, nil),
		"completion code": reply(0, 0xc1, nil),
	}

	for name, call := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := NewDBusTransport(&fakeCaller{call: call}).Send(context.Background(), Request{})
			require.ErrorIs(t, err, ErrTransport)
			require.NotErrorIs(t, err, ErrProtocol)

			var transportErr *TransportError
			require.ErrorAs(t, err, &transportErr)
		})
	}
}

// TestSend_UndecodableReply reports a ProtocolError for a reply of the wrong shape.
func TestSend_UndecodableReply(t *testing.T) {
	t.Parallel()

	caller := &fakeCaller{call: &dbus.Call{Body: []any{"unexpected"}}}

	_, err := NewDBusTransport(caller).Send(context.Background(), Request{})
	require.ErrorIs(t, err, ErrProtocol)
	require.NotErrorIs(t, err, ErrTransport)
}

// TestByteAt validates the length check before the fixed-offset read.
func TestByteAt(t *testing.T) {
	t.Parallel()

	b, err := ByteAt([]byte{0, 1, 2, 0xff}, 3)
	require.NoError(t, err)
	require.Equal(t, byte(0xff), b)

	_, err = ByteAt([]byte{0, 1, 2}, 3)
	require.ErrorIs(t, err, ErrProtocol)

	_, err = ByteAt(nil, 0)
	require.ErrorIs(t, err, ErrProtocol)
}
