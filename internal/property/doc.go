// Package property publishes named boolean properties.
//
// Sink is the publishing contract used by the power-good poller. DBusSink
// exports the properties on the system bus and emits PropertiesChanged,
// Memory keeps them in process, and Fanout publishes to several sinks.
package property
