// Package status implements the `status` command: it asks the daemon's gRPC
// health service for every power-good property and prints the result.
package status
