// Package metrics exposes Prometheus instrumentation for line monitoring and
// power-good polling.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/gpio-monitor/internal/dispatcher"
	"github.com/oshokin/gpio-monitor/internal/gpio"
	"github.com/oshokin/gpio-monitor/internal/ipmb"
)

// Failure kinds used as label values.
const (
	kindWait      = "wait"
	kindDecode    = "decode"
	kindTransport = "transport"
	kindProtocol  = "protocol"
	kindOther     = "other"
)

// Metrics holds the collectors of the daemon.
type Metrics struct {
	// registry gathers every collector below.
	registry *prometheus.Registry

	edges        *prometheus.CounterVec
	lineStops    *prometheus.CounterVec
	ipmbFailures *prometheus.CounterVec
	powerGood    *prometheus.GaugeVec
	cycle        prometheus.Histogram
}

// New creates and registers the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		edges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpio_monitor_edge_events_total",
			Help: "Edge events handled per line and direction.",
		}, []string{"line", "edge"}),
		lineStops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpio_monitor_line_stopped_total",
			Help: "Lines whose monitoring stopped on a wait or decode error.",
		}, []string{"line", "reason"}),
		ipmbFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpio_monitor_ipmb_failures_total",
			Help: "Failed power-good samples per property and failure kind.",
		}, []string{"property", "kind"}),
		powerGood: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpio_monitor_power_good",
			Help: "Last published power-good value (1 good, 0 bad).",
		}, []string{"property"}),
		cycle: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpio_monitor_power_good_cycle_seconds",
			Help:    "Duration of a power-good cycle, blocking the event loop.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	m.registry.MustRegister(m.edges, m.lineStops, m.ipmbFailures, m.powerGood, m.cycle)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// EdgeObserved counts a handled edge event.
func (m *Metrics) EdgeObserved(line string, edge gpio.Edge) {
	m.edges.WithLabelValues(line, edge.String()).Inc()
}

// LineStopped counts a line that stopped being monitored.
func (m *Metrics) LineStopped(line string, err error) {
	var (
		waitErr   *dispatcher.WaitError
		decodeErr *dispatcher.DecodeError
		reason    = kindOther
	)

	switch {
	case errors.As(err, &waitErr):
		reason = kindWait
	case errors.As(err, &decodeErr):
		reason = kindDecode
	}

	m.lineStops.WithLabelValues(line, reason).Inc()
}

// SampleFailed counts a failed power-good sample.
func (m *Metrics) SampleFailed(property string, err error) {
	kind := kindOther

	switch {
	case errors.Is(err, ipmb.ErrTransport):
		kind = kindTransport
	case errors.Is(err, ipmb.ErrProtocol):
		kind = kindProtocol
	}

	m.ipmbFailures.WithLabelValues(property, kind).Inc()
}

// CycleCompleted observes the duration of a power-good cycle.
func (m *Metrics) CycleCompleted(d time.Duration) {
	m.cycle.Observe(d.Seconds())
}

// SetProperty mirrors a published property into a gauge.
func (m *Metrics) SetProperty(_ context.Context, name string, value bool) error {
	v := 0.0
	if value {
		v = 1
	}

	m.powerGood.WithLabelValues(name).Set(v)

	return nil
}
