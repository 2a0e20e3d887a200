package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestFromContext_FallsBackToGlobal ensures a bare context yields the global logger.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestWithKV_AddsFields verifies fields attached to the context reach the log entry.
func TestWithKV_AddsFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())

	ctx = WithName(ctx, "gpio")
	ctx = WithKV(ctx, "line", "PowerButton")

	Info(ctx, "PowerButton Asserted")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "PowerButton Asserted", entries[0].Message)
	require.Equal(t, "gpio", entries[0].LoggerName)
	require.Equal(t, "PowerButton", entries[0].ContextMap()["line"])
}
