// Package status exposes the published power-good properties through the
// standard gRPC health service.
//
// Every property is a health service name: SERVING when the property is
// true, NOT_SERVING when false. The overall ("") service is SERVING only
// while every known property is true.
package status
