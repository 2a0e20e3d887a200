//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// TestDial_ValidatesAddress verifies that Dial rejects empty addresses.
func TestDial_ValidatesAddress(t *testing.T) {
	t.Parallel()

	c, err := Dial(context.Background(), "")
	require.Error(t, err)
	require.Nil(t, c)
}

// TestClient_callContext checks timeout vs cancel-only behavior of callContext.
func TestClient_callContext(t *testing.T) {
	t.Parallel()

	c := &Client{
		callTimeout: 0,
	}

	ctx, cancel := c.callContext(context.Background())
	cancel()

	require.NotNil(t, ctx)

	c.callTimeout = 10 * time.Millisecond

	ctx, cancel = c.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}

// TestClient_Check queries a real health server over loopback.
func TestClient_Check(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	hs := health.NewServer()
	hs.SetServingStatus("Power_Good1", healthpb.HealthCheckResponse_SERVING)

	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	go func() {
		_ = server.Serve(lis) //nolint:errcheck // Stopped by the cleanup below.
	}()

	t.Cleanup(server.Stop)

	c, err := Dial(context.Background(), lis.Addr().String(), WithCallTimeout(2*time.Second))
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	got, err := c.Check(context.Background(), "Power_Good1")
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, got)

	_, err = c.Check(context.Background(), "Power_Good9")
	require.Error(t, err)
}

// TestFindProcess ignores the calling process itself.
func TestFindProcess(t *testing.T) {
	t.Parallel()

	pid, err := findProcess("gpio-monitor-no-such-binary", 0)
	require.NoError(t, err)
	require.Zero(t, pid)

	require.Equal(t, "gpio-monitor-no", commName("gpio-monitor-no-such-binary"))

	pid, err = FindOtherInstance()
	require.NoError(t, err)
	require.Zero(t, pid)
}
