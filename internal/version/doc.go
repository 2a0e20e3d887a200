// Package version holds the gpio-monitor build metadata injected through ldflags.
package version
