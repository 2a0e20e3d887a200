// Package bus owns the single D-Bus connection shared by the unit activator,
// the IPMB transport and the property exporter.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Conn is the shared system bus connection.
// Calls are serialized with a mutex so a request and its reply are never
// interleaved with another component's traffic.
type Conn struct {
	// conn is the underlying godbus connection.
	conn *dbus.Conn
	// mu serializes method calls on conn.
	mu sync.Mutex
}

// ConnectSystem opens a private connection to the system bus.
func ConnectSystem() (*Conn, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	return &Conn{conn: conn}, nil
}

// New wraps an existing godbus connection.
func New(conn *dbus.Conn) *Conn {
	return &Conn{conn: conn}
}

// Call invokes method on the object at dest/path and waits for the reply.
func (c *Conn) Call(ctx context.Context, dest string, path dbus.ObjectPath, method string, args ...any) *dbus.Call {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.Object(dest, path).CallWithContext(ctx, method, 0, args...)
}

// Send invokes method without waiting for a reply.
func (c *Conn) Send(dest string, path dbus.ObjectPath, method string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := c.conn.Object(dest, path).Go(method, dbus.FlagNoReplyExpected, nil, args...)
	if call.Err != nil {
		return fmt.Errorf("send %s: %w", method, call.Err)
	}

	return nil
}

// Raw exposes the godbus connection for object exporting.
func (c *Conn) Raw() *dbus.Conn {
	return c.conn
}

// Close releases the connection.
func (c *Conn) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}
