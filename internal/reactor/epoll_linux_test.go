//go:build linux

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestEpollPoller_OneShot verifies a wait fires once per Arm and can be re-armed.
func TestEpollPoller_OneShot(t *testing.T) {
	t.Parallel()

	p, err := NewEpollPoller()
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, p.Close()) })

	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC))

	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	ready := make(chan error, 4)
	arm := func() {
		require.NoError(t, p.Arm(fds[0], func(err error) { ready <- err }))
	}

	arm()
	require.ErrorIs(t, p.Arm(fds[0], func(error) {}), ErrAlreadyArmed)

	_, err = unix.Write(fds[1], []byte{1})
	require.NoError(t, err)

	select {
	case err := <-ready:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("readiness not delivered")
	}

	// Data is still unread, but the one-shot wait must not fire again until re-armed.
	select {
	case <-ready:
		t.Fatal("one-shot wait fired twice")
	case <-time.After(50 * time.Millisecond):
	}

	arm()

	select {
	case err := <-ready:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("re-armed readiness not delivered")
	}

	p.Forget(fds[0])
}

// TestEpollPoller_ArmAfterClose rejects new waits on a closed poller.
func TestEpollPoller_ArmAfterClose(t *testing.T) {
	t.Parallel()

	p, err := NewEpollPoller()
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	require.ErrorIs(t, p.Arm(0, func(error) {}), ErrClosed)
}
