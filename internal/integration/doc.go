// Package integration holds end-to-end tests wiring the reactor, the
// dispatcher, the power-good poller and the status server together.
package integration
