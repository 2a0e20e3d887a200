package dispatcher

import (
	"context"
	"sync"

	"github.com/oshokin/gpio-monitor/internal/gpio"
	"github.com/oshokin/gpio-monitor/internal/logger"
)

// Waiter arms a single-shot read-readiness wait. ready runs on the reactor goroutine.
type Waiter interface {
	WaitReadable(fd int, ready func(error)) error
}

// Activator starts a systemd unit without waiting for the outcome.
type Activator interface {
	StartUnit(ctx context.Context, name string)
}

// Recorder observes handled events and stopped lines.
type Recorder interface {
	EdgeObserved(line string, edge gpio.Edge)
	LineStopped(line string, err error)
}

// Dispatcher arms lines and handles their edge events.
type Dispatcher struct {
	// ctx carries the logger and the shutdown signal.
	ctx context.Context //nolint:containedctx // Callbacks fire outside any request scope.
	// waiter registers readiness waits.
	waiter Waiter
	// activator starts line targets.
	activator Activator
	// recorder observes events and failures.
	recorder Recorder

	// mu protects states.
	mu sync.Mutex
	// states tracks every line ever armed.
	states map[*gpio.Line]State
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder installs an event recorder.
func WithRecorder(recorder Recorder) Option {
	return func(d *Dispatcher) {
		if recorder != nil {
			d.recorder = recorder
		}
	}
}

// New creates a dispatcher. Canceling ctx stops every line at its next event.
func New(ctx context.Context, waiter Waiter, activator Activator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ctx:       ctx,
		waiter:    waiter,
		activator: activator,
		recorder:  nopRecorder{},
		states:    make(map[*gpio.Line]State),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Arm registers a readiness wait on the line. It never blocks.
// A line that is idle or stopped may be armed again; an armed line is rejected.
func (d *Dispatcher) Arm(line *gpio.Line) error {
	d.mu.Lock()

	switch d.states[line] {
	case StateArmed, StateHandling:
		d.mu.Unlock()

		return ErrAlreadyArmed
	default:
		d.states[line] = StateArmed
	}

	d.mu.Unlock()

	return d.arm(line)
}

// State returns the current state of the line.
func (d *Dispatcher) State(line *gpio.Line) State {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.states[line]
}

// arm registers the wait for a line already marked armed.
func (d *Dispatcher) arm(line *gpio.Line) error {
	err := d.waiter.WaitReadable(line.Fd(), func(err error) {
		d.handle(line, err)
	})
	if err != nil {
		waitErr := &WaitError{Line: line.Name, Err: err}
		d.stop(line, waitErr)

		return waitErr
	}

	return nil
}

// handle processes one readiness notification.
func (d *Dispatcher) handle(line *gpio.Line, waitErr error) {
	d.setState(line, StateHandling)

	if waitErr != nil {
		d.stop(line, &WaitError{Line: line.Name, Err: waitErr})

		return
	}

	event, err := line.ReadEvent()
	if err != nil {
		d.stop(line, &DecodeError{Line: line.Name, Err: err})

		return
	}

	logger.Info(d.ctx, line.Name+" "+event.Edge.State())
	d.recorder.EdgeObserved(line.Name, event.Edge)

	// Execute the target if it is defined.
	if line.Target != "" {
		d.activator.StartUnit(d.ctx, line.Target)
	}

	if !line.ContinueAfterEvent || d.ctx.Err() != nil {
		d.setState(line, StateIdle)

		return
	}

	d.setState(line, StateArmed)

	// Errors are already logged and recorded by arm.
	_ = d.arm(line) //nolint:errcheck // Failure is terminal for the line and reported in stop.
}

// stop marks the line stopped and reports why.
func (d *Dispatcher) stop(line *gpio.Line, err error) {
	d.setState(line, StateStopped)

	logger.ErrorKV(d.ctx, "Line monitoring stopped", "line", line.Name, "error", err)
	d.recorder.LineStopped(line.Name, err)
}

// setState records the line state.
func (d *Dispatcher) setState(line *gpio.Line, state State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.states[line] = state
}

// nopRecorder discards observations.
type nopRecorder struct{}

func (nopRecorder) EdgeObserved(string, gpio.Edge) {}

func (nopRecorder) LineStopped(string, error) {}
