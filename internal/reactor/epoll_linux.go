//go:build linux

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// maxEpollEvents is the number of events fetched per epoll_wait call.
const maxEpollEvents = 16

// ErrHangup is reported when a descriptor signals an error or hang-up without data.
var ErrHangup = errors.New("descriptor error or hang-up")

// EpollPoller implements Poller with a one-shot epoll registration per wait.
type EpollPoller struct {
	// epfd is the epoll instance.
	epfd int
	// wakefd is an eventfd used to interrupt epoll_wait on Close.
	wakefd int
	// done is closed when the wait goroutine exits.
	done chan struct{}

	// mu protects the fields below.
	mu sync.Mutex
	// registered tracks descriptors already added to the epoll set.
	registered map[int]struct{}
	// pending maps armed descriptors to their callbacks.
	pending map[int]func(error)
	// closed is set by Close.
	closed bool
	// failure is the error that ended the wait goroutine, if any.
	failure error
}

// NewEpollPoller creates the epoll instance and starts its wait goroutine.
func NewEpollPoller() (*EpollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)

		return nil, fmt.Errorf("eventfd: %w", err)
	}

	event := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)} //nolint:gosec // fds fit in int32.
	if err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &event); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)

		return nil, fmt.Errorf("epoll_ctl eventfd: %w", err)
	}

	p := &EpollPoller{
		epfd:       epfd,
		wakefd:     wakefd,
		done:       make(chan struct{}),
		registered: make(map[int]struct{}),
		pending:    make(map[int]func(error)),
	}

	go p.wait()

	return p, nil
}

// Arm registers a one-shot read wait on fd.
func (p *EpollPoller) Arm(fd int, ready func(error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	if p.failure != nil {
		return p.failure
	}

	if _, ok := p.pending[fd]; ok {
		return fmt.Errorf("fd %d: %w", fd, ErrAlreadyArmed)
	}

	event := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLONESHOT,
		Fd:     int32(fd), //nolint:gosec // fds fit in int32.
	}

	// A one-shot registration stays in the set disarmed after it fires.
	op := unix.EPOLL_CTL_ADD
	if _, ok := p.registered[fd]; ok {
		op = unix.EPOLL_CTL_MOD
	}

	if err := unix.EpollCtl(p.epfd, op, fd, &event); err != nil {
		return fmt.Errorf("epoll_ctl fd %d: %w", fd, err)
	}

	p.registered[fd] = struct{}{}
	p.pending[fd] = ready

	return nil
}

// Forget removes fd from the epoll set. Call it before closing the descriptor.
func (p *EpollPoller) Forget(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.registered[fd]; !ok {
		return
	}

	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)

	delete(p.registered, fd)
	delete(p.pending, fd)
}

// Close stops the wait goroutine and releases the epoll instance.
// Outstanding waits are dropped without invoking their callbacks.
func (p *EpollPoller) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()

		return nil
	}

	p.closed = true
	p.mu.Unlock()

	var one [8]byte

	binary.NativeEndian.PutUint64(one[:], 1)

	if _, err := unix.Write(p.wakefd, one[:]); err != nil {
		return fmt.Errorf("wake epoll: %w", err)
	}

	<-p.done

	return errors.Join(unix.Close(p.wakefd), unix.Close(p.epfd))
}

// wait delivers readiness until Close wakes it up.
func (p *EpollPoller) wait() {
	defer close(p.done)

	events := make([]unix.EpollEvent, maxEpollEvents)

	for {
		n, err := unix.EpollWait(p.epfd, events, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}

			p.failAll(fmt.Errorf("epoll_wait: %w", err))

			return
		}

		for i := range n {
			fd := int(events[i].Fd)
			if fd == p.wakefd {
				return
			}

			p.mu.Lock()
			ready := p.pending[fd]
			delete(p.pending, fd)
			p.mu.Unlock()

			if ready == nil {
				continue
			}

			var waitErr error
			if events[i].Events&unix.EPOLLIN == 0 && events[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
				waitErr = fmt.Errorf("fd %d: %w", fd, ErrHangup)
			}

			ready(waitErr)
		}
	}
}

// failAll ends every outstanding wait with err.
func (p *EpollPoller) failAll(err error) {
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[int]func(error))
	p.failure = err
	p.mu.Unlock()

	for _, ready := range pending {
		ready(err)
	}
}
