// Package ipmb performs request/response exchanges on the intra-board
// message bus through the OpenBMC IPMB bridge daemon.
//
// Send is a blocking call. Callers running on the reactor goroutine stall
// every other handler for the duration of the round trip.
package ipmb
