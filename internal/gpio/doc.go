// Package gpio models the monitored input lines.
//
// A Line couples the label, the continue flag and the optional systemd target
// with a Handle: the readiness-watchable descriptor of the kernel line request
// and the operation decoding one edge event from it. Request opens a line
// through the Linux GPIO character device (uAPI v2).
package gpio
