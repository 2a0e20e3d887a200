package status

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/gpio-monitor/internal/config"
	statusserver "github.com/oshokin/gpio-monitor/internal/status"
)

// serverChecker adapts the in-process status server to HealthChecker.
type serverChecker struct {
	server *statusserver.Server
}

func (c serverChecker) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := c.server.Health().Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}

	return resp.GetStatus(), nil
}

// TestReport renders every property and the overall state.
func TestReport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server := statusserver.NewServer()
	require.NoError(t, server.SetProperty(ctx, "Power_Good1", true))
	require.NoError(t, server.SetProperty(ctx, "Power_Good2", false))

	var out bytes.Buffer

	err := Report(ctx, serverChecker{server: server}, []string{"Power_Good1", "Power_Good2", "Power_Good3"}, &out)
	require.NoError(t, err)
	require.Equal(t, "Power_Good1: good\nPower_Good2: bad\nPower_Good3: unknown\noverall: bad\n", out.String())
}

// TestReportJSON renders the report as one JSON object.
func TestReportJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	server := statusserver.NewServer()
	require.NoError(t, server.SetProperty(ctx, "Power_Good1", true))
	require.NoError(t, server.SetProperty(ctx, "Power_Good2", true))

	var out bytes.Buffer

	require.NoError(t, ReportJSON(ctx, serverChecker{server: server}, []string{"Power_Good1", "Power_Good2"}, &out))
	require.JSONEq(t, `{"Power_Good1":"good","Power_Good2":"good","overall":"good"}`, out.String())
}

// failingChecker rejects every check.
type failingChecker struct{}

func (failingChecker) Check(context.Context, string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	return healthpb.HealthCheckResponse_UNKNOWN, errors.New("connection refused")
}

// TestReport_Unreachable fails when the overall state cannot be fetched.
func TestReport_Unreachable(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	err := Report(context.Background(), failingChecker{}, []string{"Power_Good1"}, &out)
	require.Error(t, err)
	require.Equal(t, "Power_Good1: unknown\n", out.String())
}

// TestRun_NoAddress requires a status address from flags or settings.
func TestRun_NoAddress(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gpio-monitor.yaml")
	require.NoError(t, config.Save(path, &config.Config{PowerGood: config.PowerGood{Enabled: true}}))

	err := Run(context.Background(), &Options{ConfigPath: path, Out: new(bytes.Buffer)})
	require.ErrorIs(t, err, errNoStatusAddress)
}

// TestResolve_UsesConfiguredTimeout carries the settings timeout to the client.
func TestResolve_UsesConfiguredTimeout(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gpio-monitor.yaml")
	require.NoError(t, config.Save(path, &config.Config{
		Timeout:       2 * time.Second,
		StatusAddress: "127.0.0.1:7070",
		PowerGood:     config.PowerGood{Enabled: true},
	}))

	target, err := resolve(&Options{ConfigPath: path})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7070", target.address)
	require.Equal(t, []string{"Power_Good1", "Power_Good2"}, target.properties)
	require.Equal(t, 2*time.Second, target.timeout)

	target, err = resolve(&Options{ConfigPath: path, Address: "127.0.0.1:9090", Properties: []string{"Power_Good2"}})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9090", target.address)
	require.Equal(t, []string{"Power_Good2"}, target.properties)
	require.Equal(t, 2*time.Second, target.timeout)
}

// TestResolve_FlagsWithoutConfig falls back to the default timeout when the
// flags are complete and no settings file exists.
func TestResolve_FlagsWithoutConfig(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "missing.yaml")

	target, err := resolve(&Options{ConfigPath: missing, Address: "127.0.0.1:9090", Properties: []string{"Power_Good1"}})
	require.NoError(t, err)
	require.Equal(t, config.DefaultTimeout, target.timeout)

	_, err = resolve(&Options{ConfigPath: missing, Address: "127.0.0.1:9090"})
	require.Error(t, err)
}
