// Package logger wraps a global zap sugared logger for the daemon.
//
// Loggers travel in contexts: WithName and WithKV derive a child logger,
// FromContext falls back to the global one. WithLevel pins a single
// component to its own level, independent of SetLevel.
package logger
