// Package common holds helpers shared by several services.
//
// It provides a lightweight gRPC health client with timeouts, used by the
// status command, and a process lookup that keeps a second monitor from
// contending for the same GPIO lines.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
