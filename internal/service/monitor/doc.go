// Package monitor wires the gpio-monitor daemon: it requests the configured
// lines, arms them on the reactor, starts the power-good poller and serves
// metrics and status until the context is canceled.
package monitor
