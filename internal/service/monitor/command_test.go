package monitor

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oshokin/gpio-monitor/internal/config"
	"github.com/oshokin/gpio-monitor/internal/dispatcher"
	"github.com/oshokin/gpio-monitor/internal/gpio"
	"github.com/oshokin/gpio-monitor/internal/logger"
	"github.com/oshokin/gpio-monitor/internal/metrics"
	"github.com/oshokin/gpio-monitor/internal/status"
)

// idleHandle is a line handle that never produces events.
type idleHandle struct {
	fd     int
	closed bool
}

func (h *idleHandle) Fd() int { return h.fd }

func (h *idleHandle) ReadEvent() (gpio.Event, error) { return gpio.Event{}, errors.New("no event") }

func (h *idleHandle) Close() error {
	h.closed = true

	return nil
}

// countingWaiter accepts every wait and never completes it.
type countingWaiter struct {
	fds []int
}

func (w *countingWaiter) WaitReadable(fd int, _ func(error)) error {
	w.fds = append(w.fds, fd)

	return nil
}

// nopActivator ignores unit starts.
type nopActivator struct{}

func (nopActivator) StartUnit(context.Context, string) {}

// TestArmLines_SkipsFailedRequests keeps monitoring the lines that could be requested.
func TestArmLines_SkipsFailedRequests(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core).Sugar())

	waiter := new(countingWaiter)
	d := dispatcher.New(ctx, waiter, nopActivator{})

	var requested []gpio.RequestOptions

	request := func(opts gpio.RequestOptions) (gpio.Handle, error) {
		requested = append(requested, opts)
		if opts.Offset == 2 {
			return nil, errors.New("device or resource busy")
		}

		return &idleHandle{fd: 100 + opts.Offset}, nil
	}

	lines := armLinesWith(ctx, d, []config.Line{
		{Name: "PowerButton", Chip: "/dev/gpiochip0", Offset: 1, Edge: config.EdgeRising, Target: "example.target"},
		{Name: "Reset", Chip: "/dev/gpiochip0", Offset: 2, Edge: config.EdgeBoth},
		{Name: "Id", Chip: "/dev/gpiochip1", Offset: 3, Edge: config.EdgeFalling, ActiveLow: true, Continue: true},
	}, request)

	require.Len(t, lines, 2)
	require.Equal(t, "PowerButton", lines[0].Name)
	require.Equal(t, "example.target", lines[0].Target)
	require.True(t, lines[1].ContinueAfterEvent)
	require.Equal(t, []int{101, 103}, waiter.fds)

	require.Equal(t, gpio.DetectRising, requested[0].Edge)
	require.Equal(t, gpio.DetectBoth, requested[1].Edge)
	require.Equal(t, gpio.DetectFalling, requested[2].Edge)
	require.True(t, requested[2].ActiveLow)

	require.Equal(t, 1, logs.FilterMessage("PowerButton monitoring started").Len())
	require.Equal(t, 1, logs.FilterField(zap.String("line", "Reset")).Len())
	require.Equal(t, dispatcher.StateArmed, d.State(lines[1]))
}

// TestApplyLogLevel prefers the override and rejects unknown names.
func TestApplyLogLevel(t *testing.T) {
	// Not parallel: mutates the global logger level.
	defer logger.SetLevel(logger.Level())

	require.NoError(t, applyLogLevel("info", ""))
	require.Equal(t, zapcore.InfoLevel, logger.Level())

	require.NoError(t, applyLogLevel("info", "debug"))
	require.Equal(t, zapcore.DebugLevel, logger.Level())

	require.ErrorIs(t, applyLogLevel("loud", ""), errInvalidLogLevel)
}

// TestRun_MissingConfig fails fast when the settings file is absent.
func TestRun_MissingConfig(t *testing.T) {
	t.Parallel()

	err := Run(context.Background(), &Options{ConfigPath: t.TempDir() + "/missing.yaml"})
	require.Error(t, err)
}

// TestStartBackground_BindFailureCancelsRun stops the run as soon as an endpoint
// cannot bind, and reports the failure without waiting for shutdown.
func TestStartBackground_BindFailureCancelsRun(t *testing.T) {
	t.Parallel()

	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() {
		_ = occupied.Close()
	}()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx, cancel := context.WithCancel(logger.ToContext(context.Background(), zap.New(core).Sugar()))
	defer cancel()

	instrumentation := metrics.New()
	statusServer := status.NewServer()

	wait := startBackground(ctx, cancel, []backgroundServer{
		{
			name: "metrics",
			run: func(ctx context.Context) error {
				return serveMetrics(ctx, occupied.Addr().String(), instrumentation)
			},
		},
		{
			name: "status",
			run: func(ctx context.Context) error {
				return statusServer.Run(ctx, "127.0.0.1:0")
			},
		},
	})

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		require.FailNow(t, "run context was not canceled after the bind failure")
	}

	err = wait()
	require.Error(t, err)
	require.ErrorContains(t, err, "metrics server")

	failures := logs.FilterMessage("Background server failed").All()
	require.Len(t, failures, 1)
	require.Equal(t, "metrics", failures[0].ContextMap()["server"])
}

// TestStartBackground_CleanShutdown returns nil when every server stops on cancel.
func TestStartBackground_CleanShutdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	wait := startBackground(ctx, cancel, []backgroundServer{
		{name: "idle", run: func(ctx context.Context) error {
			<-ctx.Done()

			return nil
		}},
	})

	cancel()
	require.NoError(t, wait())
}
