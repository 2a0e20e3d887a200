// Package dispatcher binds GPIO line readiness to edge handling.
//
// Each line has at most one outstanding readiness wait. When the wait
// completes the dispatcher decodes one event, logs it, optionally starts the
// line's systemd target and, for continuous lines, arms the next wait. Any
// wait or decode failure stops monitoring of that line; it is logged and
// never retried automatically.
package dispatcher
