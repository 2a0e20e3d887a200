package property

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Sink stores a named boolean property.
type Sink interface {
	SetProperty(ctx context.Context, name string, value bool) error
}

// Fanout publishes every update to all sinks and joins their errors.
type Fanout []Sink

// SetProperty implements Sink.
func (f Fanout) SetProperty(ctx context.Context, name string, value bool) error {
	var errs []error

	for _, sink := range f {
		if sink == nil {
			continue
		}

		if err := sink.SetProperty(ctx, name, value); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Update is one recorded property write.
type Update struct {
	Name  string
	Value bool
}

// Memory is an in-process Sink that remembers every write.
type Memory struct {
	// mu protects the fields below.
	mu sync.Mutex
	// values holds the latest value of every property.
	values map[string]bool
	// history lists writes in order.
	history []Update
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]bool)}
}

// SetProperty implements Sink.
func (m *Memory) SetProperty(_ context.Context, name string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[name] = value
	m.history = append(m.history, Update{Name: name, Value: value})

	return nil
}

// Get returns the latest value of name and whether it was ever set.
func (m *Memory) Get(name string) (value, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok = m.values[name]

	return value, ok
}

// History returns a copy of all writes in order.
func (m *Memory) History() []Update {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Update(nil), m.history...)
}

// ErrUnknownProperty is returned when a sink does not declare the property.
var ErrUnknownProperty = errors.New("unknown property")

// unknown wraps ErrUnknownProperty with the property name.
func unknown(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownProperty, name)
}
