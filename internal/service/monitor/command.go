package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/oshokin/gpio-monitor/internal/bus"
	"github.com/oshokin/gpio-monitor/internal/config"
	"github.com/oshokin/gpio-monitor/internal/dispatcher"
	"github.com/oshokin/gpio-monitor/internal/gpio"
	"github.com/oshokin/gpio-monitor/internal/ipmb"
	"github.com/oshokin/gpio-monitor/internal/logger"
	"github.com/oshokin/gpio-monitor/internal/metrics"
	"github.com/oshokin/gpio-monitor/internal/powergood"
	"github.com/oshokin/gpio-monitor/internal/property"
	"github.com/oshokin/gpio-monitor/internal/reactor"
	"github.com/oshokin/gpio-monitor/internal/service/common"
	"github.com/oshokin/gpio-monitor/internal/status"
	"github.com/oshokin/gpio-monitor/internal/systemd"
	"github.com/oshokin/gpio-monitor/internal/version"
)

// Options controls the gpio-monitor process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// LogLevel overrides the level from the settings file when not empty.
	LogLevel string
}

const (
	// metricsShutdownTimeout bounds the graceful stop of the metrics endpoint.
	metricsShutdownTimeout = 5 * time.Second
	// metricsReadHeaderTimeout bounds reading request headers of a scrape.
	metricsReadHeaderTimeout = 5 * time.Second
)

var (
	// ErrAlreadyRunning indicates another monitor process owns the lines.
	ErrAlreadyRunning = errors.New("another gpio-monitor instance is running")
	// errInvalidLogLevel is returned for an unknown level name.
	errInvalidLogLevel = errors.New("invalid log level")
	// errNoLines is returned when no line could be armed and polling is disabled.
	errNoLines = errors.New("no line could be monitored")
)

// Run starts monitoring and blocks until ctx is canceled.
//
//nolint:cyclop,funlen // Wiring reads top to bottom; splitting would scatter the lifecycle.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "gpio-monitor")

	// A failing background server cancels the whole run.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Load configuration first to get lines and poller settings.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = applyLogLevel(cfg.LogLevel, opts.LogLevel); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Starting gpio-monitor", version.KV()...)

	// Two monitors would fight over the same line requests.
	pid, err := common.FindOtherInstance()
	if err != nil {
		return fmt.Errorf("check running instances: %w", err)
	}

	if pid != 0 {
		return fmt.Errorf("%w: pid %d", ErrAlreadyRunning, pid)
	}

	conn, err := bus.ConnectSystem()
	if err != nil {
		return err
	}

	defer func() {
		_ = conn.Close()
	}()

	poller, err := reactor.NewEpollPoller()
	if err != nil {
		return fmt.Errorf("create poller: %w", err)
	}

	defer func() {
		_ = poller.Close()
	}()

	loop := reactor.New(poller)
	instrumentation := metrics.New()

	d := dispatcher.New(ctx, loop, systemd.NewActivator(conn), dispatcher.WithRecorder(instrumentation))

	lines := armLines(ctx, d, cfg.Lines)

	defer func() {
		for _, line := range lines {
			poller.Forget(line.Fd())
			_ = line.Close()
		}
	}()

	if len(lines) == 0 && !cfg.PowerGood.Enabled {
		return errNoLines
	}

	var published []string

	if cfg.PowerGood.Enabled {
		for _, ch := range cfg.PowerGood.Channels {
			published = append(published, ch.Property)
		}
	}

	statusServer := status.NewServer(published...)

	if cfg.PowerGood.Enabled {
		if err = startPowerGood(ctx, loop, conn, cfg, property.Fanout{instrumentation, statusServer}, instrumentation); err != nil {
			return err
		}
	}

	var servers []backgroundServer

	if cfg.MetricsAddress != "" {
		servers = append(servers, backgroundServer{
			name: "metrics",
			run: func(ctx context.Context) error {
				return serveMetrics(ctx, cfg.MetricsAddress, instrumentation)
			},
		})
	}

	if cfg.StatusAddress != "" {
		servers = append(servers, backgroundServer{
			name: "status",
			run: func(ctx context.Context) error {
				return statusServer.Run(ctx, cfg.StatusAddress)
			},
		})
	}

	wait := startBackground(ctx, cancel, servers)

	logger.InfoKV(ctx, "Monitor running", "lines", len(lines), "power_good", cfg.PowerGood.Enabled)

	// The loop services every line and timer callback until shutdown.
	_ = loop.Run(ctx) //nolint:errcheck // Run only returns nil.

	logger.Info(ctx, "Shutting down monitor")

	return wait()
}

// backgroundServer is an endpoint served beside the reactor loop.
type backgroundServer struct {
	// name labels the server in logs.
	name string
	// run serves until ctx is canceled.
	run func(ctx context.Context) error
}

// startBackground runs every server in its own goroutine. A server that fails
// is logged at once and cancels ctx, which stops the loop and the other servers.
// The returned wait blocks until every server has returned and joins their errors.
func startBackground(ctx context.Context, cancel context.CancelFunc, servers []backgroundServer) (wait func() error) {
	results := make(chan error, len(servers))

	for _, server := range servers {
		go func() {
			err := server.run(ctx)
			if err != nil {
				logger.ErrorKV(ctx, "Background server failed", "server", server.name, "error", err)
				cancel()

				err = fmt.Errorf("%s server: %w", server.name, err)
			}

			results <- err
		}()
	}

	return func() error {
		errs := make([]error, 0, len(servers))

		for range servers {
			errs = append(errs, <-results)
		}

		return errors.Join(errs...)
	}
}

// applyLogLevel sets the global level from the override or the settings file.
func applyLogLevel(configured, override string) error {
	name := configured
	if override != "" {
		name = override
	}

	level, ok := logger.ParseLogLevel(name)
	if !ok {
		return fmt.Errorf("%w: %q", errInvalidLogLevel, name)
	}

	logger.SetLevel(level)

	return nil
}

// LineRequester opens a line for edge events.
type LineRequester func(opts gpio.RequestOptions) (gpio.Handle, error)

// requestChardev opens lines through the GPIO character device.
func requestChardev(opts gpio.RequestOptions) (gpio.Handle, error) {
	return gpio.Request(opts)
}

// armLines requests and arms every configured line. A line that cannot be
// requested or armed is logged and skipped; the others keep working.
func armLines(ctx context.Context, d *dispatcher.Dispatcher, configured []config.Line) []*gpio.Line {
	return armLinesWith(ctx, d, configured, requestChardev)
}

// armLinesWith is armLines with an injectable line requester.
func armLinesWith(
	ctx context.Context,
	d *dispatcher.Dispatcher,
	configured []config.Line,
	request LineRequester,
) []*gpio.Line {
	lines := make([]*gpio.Line, 0, len(configured))

	for _, lc := range configured {
		handle, err := request(gpio.RequestOptions{
			Chip:      lc.Chip,
			Offset:    lc.Offset,
			Edge:      edgeDetection(lc.Edge),
			ActiveLow: lc.ActiveLow,
		})
		if err != nil {
			logger.ErrorKV(ctx, "Failed to request line events", "line", lc.Name, "error", err)

			continue
		}

		line := gpio.NewLine(lc.Name, lc.Target, lc.Continue, handle)

		if err = d.Arm(line); err != nil {
			_ = line.Close()

			continue
		}

		lines = append(lines, line)

		logger.Info(ctx, lc.Name+" monitoring started")
	}

	return lines
}

// edgeDetection maps the configured edge selector.
func edgeDetection(edge string) gpio.EdgeDetection {
	switch edge {
	case config.EdgeRising:
		return gpio.DetectRising
	case config.EdgeFalling:
		return gpio.DetectFalling
	default:
		return gpio.DetectBoth
	}
}

// startPowerGood exports the properties and starts the poller.
func startPowerGood(
	ctx context.Context,
	loop *reactor.Loop,
	conn *bus.Conn,
	cfg *config.Config,
	sinks property.Fanout,
	recorder powergood.Recorder,
) error {
	pg := cfg.PowerGood
	channels := make([]powergood.Channel, 0, len(pg.Channels))
	names := make([]string, 0, len(pg.Channels))

	for _, ch := range pg.Channels {
		channels = append(channels, powergood.Channel{Property: ch.Property, Host: ch.Host})
		names = append(names, ch.Property)
	}

	exported, err := property.ExportDBus(conn.Raw(), property.DBusObject{
		Service:   pg.DBus.Service,
		Path:      dbus.ObjectPath(pg.DBus.Path),
		Interface: pg.DBus.Interface,
	}, names)
	if err != nil {
		return err
	}

	sink := append(property.Fanout{exported}, sinks...)

	transport := ipmb.NewDBusTransport(conn, ipmb.WithTimeout(cfg.Timeout))

	ctx = logger.WithName(ctx, "power-good")

	if level, ok := logger.ParseLogLevel(pg.LogLevel); ok {
		ctx = logger.WithLevel(ctx, level)
	}

	powergood.New(loop, transport, sink, powergood.Options{
		Interval:     pg.Interval,
		NetFn:        pg.NetFn,
		LUN:          pg.LUN,
		Cmd:          pg.Cmd,
		Payload:      pg.RequestPayload(),
		StatusOffset: pg.StatusOffset,
		CPUMask:      pg.CPUMask,
		PCHMask:      pg.PCHMask,
		Channels:     channels,
	}, powergood.WithRecorder(recorder)).Start(ctx)

	return nil
}

// serveMetrics exposes the Prometheus endpoint until ctx is canceled.
func serveMetrics(ctx context.Context, address string, m *metrics.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	logger.InfoKV(ctx, "Metrics endpoint listening", "listen_address", lis.Addr().String())

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}

	return nil
}
