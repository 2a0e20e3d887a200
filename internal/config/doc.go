// Package config defines the daemon settings and provides helpers to load,
// validate and save them in YAML format.
//
// The Config type lists the monitored GPIO lines (label, chip, offset, edge,
// continue flag and systemd target) and the IPMB power-good poller settings.
// Validate fills defaults for everything the original firmware hardcoded:
// a 200ms cadence, status byte offset 3 and the two Power_Good channels.
package config
