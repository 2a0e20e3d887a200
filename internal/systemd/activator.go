// Package systemd starts systemd units over D-Bus.
package systemd

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/oshokin/gpio-monitor/internal/logger"
)

const (
	// Service is the bus name of the systemd manager.
	Service = "org.freedesktop.systemd1"
	// ObjectPath is the object path of the systemd manager.
	ObjectPath dbus.ObjectPath = "/org/freedesktop/systemd1"
	// StartUnitMethod is the fully qualified StartUnit method.
	StartUnitMethod = "org.freedesktop.systemd1.Manager.StartUnit"

	// ModeReplace replaces any conflicting queued job.
	ModeReplace = "replace"
)

// Sender sends a method call without waiting for the reply.
type Sender interface {
	Send(dest string, path dbus.ObjectPath, method string, args ...any) error
}

// Activator starts units fire-and-forget.
type Activator struct {
	// sender delivers the StartUnit call.
	sender Sender
}

// NewActivator creates an activator on the provided bus sender.
func NewActivator(sender Sender) *Activator {
	return &Activator{sender: sender}
}

// StartUnit asks systemd to start name in replace mode. Failures are only logged.
func (a *Activator) StartUnit(ctx context.Context, name string) {
	if err := a.sender.Send(Service, ObjectPath, StartUnitMethod, name, ModeReplace); err != nil {
		logger.ErrorKV(ctx, "Failed to start unit", "unit", name, "error", err)

		return
	}

	logger.DebugKV(ctx, "Unit start requested", "unit", name, "mode", ModeReplace)
}
