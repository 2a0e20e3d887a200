package property

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

// DBusObject names where the properties are exported.
type DBusObject struct {
	// Service is the well-known bus name requested for the daemon.
	Service string
	// Path is the object path.
	Path dbus.ObjectPath
	// Interface is the interface holding the properties.
	Interface string
}

// propertiesChangedSignal is the standard property change notification.
const propertiesChangedSignal = "org.freedesktop.DBus.Properties.PropertiesChanged"

// errNameTaken is returned when another process owns the bus name.
var errNameTaken = errors.New("bus name already taken")

// DBusSink exports read-only boolean properties on the bus.
type DBusSink struct {
	// conn carries the PropertiesChanged signals.
	conn *dbus.Conn
	// path is the exported object path.
	path dbus.ObjectPath
	// props is the exported org.freedesktop.DBus.Properties implementation.
	props *prop.Properties
	// iface is the interface holding the properties.
	iface string

	// mu protects emitted.
	mu sync.Mutex
	// emitted holds the last value announced for every declared property.
	emitted map[string]bool
}

// ExportDBus exports names, all initially false, and claims the service name.
func ExportDBus(conn *dbus.Conn, object DBusObject, names []string) (*DBusSink, error) {
	declared := make(map[string]*prop.Prop, len(names))
	emitted := make(map[string]bool, len(names))

	for _, name := range names {
		// Signals are emitted by SetProperty so a closed bus surfaces as an error.
		declared[name] = &prop.Prop{
			Value:    false,
			Writable: false,
			Emit:     prop.EmitFalse,
		}
		emitted[name] = false
	}

	props, err := prop.Export(conn, object.Path, prop.Map{object.Interface: declared})
	if err != nil {
		return nil, fmt.Errorf("export properties: %w", err)
	}

	node := &introspect.Node{
		Name: string(object.Path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       object.Interface,
				Properties: props.Introspection(object.Interface),
			},
		},
	}

	err = conn.Export(introspect.NewIntrospectable(node), object.Path, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		return nil, fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(object.Service, dbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request name %s: %w", object.Service, err)
	}

	if reply != dbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("%w: %s", errNameTaken, object.Service)
	}

	return &DBusSink{
		conn:    conn,
		path:    object.Path,
		props:   props,
		iface:   object.Interface,
		emitted: emitted,
	}, nil
}

// SetProperty implements Sink. The exported value is always updated;
// PropertiesChanged is emitted only when the value differs from the last one
// announced. A failed emission is returned and retried on the next write.
func (s *DBusSink) SetProperty(_ context.Context, name string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.emitted[name]
	if !ok {
		return unknown(name)
	}

	// Declared with EmitFalse and a bool value, so this cannot fail.
	s.props.SetMust(s.iface, name, value)

	if last == value {
		return nil
	}

	changed := map[string]dbus.Variant{name: dbus.MakeVariant(value)}

	if err := s.conn.Emit(s.path, propertiesChangedSignal, s.iface, changed, []string{}); err != nil {
		return fmt.Errorf("emit %s change: %w", name, err)
	}

	s.emitted[name] = value

	return nil
}
