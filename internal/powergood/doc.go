// Package powergood samples the chassis power-good signals over IPMB and
// publishes them as boolean properties.
//
// The poller runs a single recurring timer on the reactor: wait the interval,
// sample every channel, publish, schedule the next cycle. A failed sample
// skips that property for the cycle; the schedule is never affected.
package powergood
