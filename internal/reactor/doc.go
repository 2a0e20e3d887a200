// Package reactor implements the single-threaded cooperative event loop that
// drives the monitor.
//
// All callbacks (descriptor readiness, timer expiry, posted tasks) run one at
// a time on the goroutine executing Loop.Run, so handlers never race with each
// other. Blocking inside a callback stalls every other handler: an IPMB round
// trip made from a timer callback delays GPIO event handling for its duration.
package reactor
