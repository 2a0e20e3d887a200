package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/gpio-monitor/internal/config"
	"github.com/oshokin/gpio-monitor/internal/logger"
	"github.com/oshokin/gpio-monitor/internal/service/common"
)

// Options configures the status query.
type Options struct {
	// ConfigPath to YAML settings file, used when Address or Properties are empty.
	ConfigPath string
	// Address overrides the status server address from config when specified.
	Address string
	// Properties lists the properties to query. Defaults to the configured channels.
	Properties []string
	// JSON renders the report as one JSON object instead of text lines.
	JSON bool
	// Out receives the report.
	Out io.Writer
}

// HealthChecker queries one health service.
type HealthChecker interface {
	Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error)
}

// errNoStatusAddress is returned when no status server address is known.
var errNoStatusAddress = errors.New("status server address is not configured")

// Run connects to the status server and prints one line per property.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "gpio-monitor-status")

	target, err := resolve(opts)
	if err != nil {
		return err
	}

	client, err := common.Dial(ctx, target.address, common.WithCallTimeout(target.timeout))
	if err != nil {
		return err
	}

	// Close connection on function exit.
	defer func() {
		_ = client.Close()
	}()

	if opts.JSON {
		return ReportJSON(ctx, client, target.properties, opts.Out)
	}

	return Report(ctx, client, target.properties, opts.Out)
}

// queryTarget is the resolved server address, property list and call timeout.
type queryTarget struct {
	address    string
	properties []string
	timeout    time.Duration
}

// resolve merges flags with the settings file. The file may be absent only
// when the flags name both the address and the properties.
func resolve(opts *Options) (queryTarget, error) {
	target := queryTarget{
		address:    opts.Address,
		properties: opts.Properties,
		timeout:    config.DefaultTimeout,
	}

	cfg, err := config.Load(opts.ConfigPath)

	switch {
	case err == nil:
		target.timeout = cfg.Timeout
	case errors.Is(err, fs.ErrNotExist) && target.address != "" && len(target.properties) > 0:
		return target, nil
	default:
		return target, fmt.Errorf("load settings: %w", err)
	}

	if target.address == "" {
		target.address = cfg.StatusAddress
	}

	if len(target.properties) == 0 {
		for _, ch := range cfg.PowerGood.Channels {
			target.properties = append(target.properties, ch.Property)
		}
	}

	if target.address == "" {
		return target, errNoStatusAddress
	}

	return target, nil
}

// Report writes "<property>: good|bad|unknown" for every property and the overall state.
func Report(ctx context.Context, checker HealthChecker, properties []string, out io.Writer) error {
	states, err := collect(ctx, checker, properties)

	for _, state := range states {
		if _, werr := fmt.Fprintf(out, "%s: %s\n", state.name, state.word); werr != nil {
			return fmt.Errorf("write report: %w", werr)
		}
	}

	return err
}

// ReportJSON writes the same report as a single JSON object keyed by property.
// The overall state is stored under the "overall" key.
func ReportJSON(ctx context.Context, checker HealthChecker, properties []string, out io.Writer) error {
	states, err := collect(ctx, checker, properties)
	if err != nil {
		return err
	}

	fields := make(map[string]any, len(states))
	for _, state := range states {
		fields[state.name] = state.word
	}

	report, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}

	data, err := protojson.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	if _, err = fmt.Fprintln(out, string(data)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}

// propertyState is one rendered line of the report.
type propertyState struct {
	name string
	word string
}

// collect checks every property, then the overall state. A failed property check
// is reported as unknown; a failed overall check aborts the report.
func collect(ctx context.Context, checker HealthChecker, properties []string) ([]propertyState, error) {
	states := make([]propertyState, 0, len(properties)+1)

	for _, name := range properties {
		state, err := checker.Check(ctx, name)
		if err != nil {
			logger.WarnKV(ctx, "Status check failed", "property", name, "error", err)
		}

		states = append(states, propertyState{name: name, word: describe(state, err)})
	}

	state, err := checker.Check(ctx, "")
	if err != nil {
		return states, fmt.Errorf("check overall status: %w", err)
	}

	return append(states, propertyState{name: "overall", word: describe(state, nil)}), nil
}

// describe renders a serving status as a power-good word.
func describe(state healthpb.HealthCheckResponse_ServingStatus, err error) string {
	if err != nil {
		return "unknown"
	}

	switch state {
	case healthpb.HealthCheckResponse_SERVING:
		return "good"
	case healthpb.HealthCheckResponse_NOT_SERVING:
		return "bad"
	default:
		return "unknown"
	}
}
