package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// fixedLevelCore replaces the level of the wrapped core, so a component can log
// more or less than the daemon-wide level.
type fixedLevelCore struct {
	zapcore.Core

	// level is the minimum level written by this core.
	level zapcore.Level
}

// Enabled reports whether l passes the fixed level.
func (c *fixedLevelCore) Enabled(l zapcore.Level) bool {
	return c.level.Enabled(l)
}

// Check adds the core to ce when the entry passes the fixed level. The wrapped
// core's own level is not consulted.
//
//nolint:gocritic // AddCore requires ent to be passed by value.
func (c *fixedLevelCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

// With keeps the fixed level on derived cores.
//
//nolint:ireturn,nolintlint // zapcore.Core is the zap extension point.
func (c *fixedLevelCore) With(fields []zapcore.Field) zapcore.Core {
	return &fixedLevelCore{
		Core:  c.Core.With(fields),
		level: c.level,
	}
}

// LevelOption returns a zap option pinning the logger to lvl.
//
//nolint:ireturn,nolintlint // zap.Option is the zap extension point.
func LevelOption(lvl zapcore.Level) zap.Option {
	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &fixedLevelCore{Core: core, level: lvl}
	})
}

// WithLevel returns a context whose logger writes at lvl regardless of the global level.
func WithLevel(ctx context.Context, lvl zapcore.Level) context.Context {
	return ToContext(ctx, FromContext(ctx).WithOptions(LevelOption(lvl)))
}
