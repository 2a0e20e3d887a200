package reactor

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Poller reports read readiness of file descriptors.
//
// Arm registers a single-shot wait: ready is called exactly once, from an
// arbitrary goroutine, with nil when fd became readable or with the error
// that ended the wait.
type Poller interface {
	Arm(fd int, ready func(error)) error
}

var (
	// ErrClosed is returned when work is submitted to a stopped loop or poller.
	ErrClosed = errors.New("reactor closed")
	// ErrAlreadyArmed is returned when a descriptor already has an outstanding wait.
	ErrAlreadyArmed = errors.New("descriptor already armed")
)

// Loop serializes callbacks onto one goroutine.
type Loop struct {
	// poller delivers descriptor readiness.
	poller Poller
	// wake signals Run that the queue is not empty.
	wake chan struct{}

	// mu protects queue and closed.
	mu sync.Mutex
	// queue holds tasks in submission order.
	queue []func()
	// closed is set once Run has returned.
	closed bool
}

// New creates a loop fed by the provided poller.
func New(poller Poller) *Loop {
	return &Loop{
		poller: poller,
		wake:   make(chan struct{}, 1),
	}
}

// Post schedules fn to run on the loop goroutine.
// It reports false when the loop has already stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()

	if l.closed {
		l.mu.Unlock()

		return false
	}

	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	return true
}

// Run executes posted tasks in order until ctx is canceled.
// Tasks still queued at cancellation are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}

		for {
			tasks := l.drain()
			if len(tasks) == 0 {
				break
			}

			for _, task := range tasks {
				if ctx.Err() != nil {
					return nil
				}

				task()
			}
		}
	}
}

// drain takes the pending tasks out of the queue.
func (l *Loop) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	tasks := l.queue
	l.queue = nil

	return tasks
}

// WaitReadable arms a single-shot read-readiness wait on fd.
// The callback runs on the loop goroutine.
func (l *Loop) WaitReadable(fd int, ready func(error)) error {
	return l.poller.Arm(fd, func(err error) {
		l.Post(func() { ready(err) })
	})
}

// Timer is a pending AfterFunc callback.
type Timer struct {
	timer *time.Timer
}

// Stop prevents the callback from being posted. It reports false if the
// timer already fired.
func (t *Timer) Stop() bool {
	return t.timer.Stop()
}

// AfterFunc posts fn to the loop once d has elapsed.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	return &Timer{
		timer: time.AfterFunc(d, func() {
			l.Post(fn)
		}),
	}
}
