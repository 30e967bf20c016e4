// Package log is a context wrapper around slog.Logger
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/dylanowen/archi-zoom/lib/env"
)

type loggerKey struct{}

func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func from(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func minLevel() slog.Level {
	if env.Debug() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// WithDefault attaches the stderr logger to ctx unless one is already
// attached.
func WithDefault(ctx context.Context) context.Context {
	if _, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return ctx
	}
	return With(ctx, NewLogger(os.Stderr, minLevel()))
}

// NewLogger writes pretty, level-gated records to w.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(NewLevelHandler(level, NewPrettyHandler(w)))
}

// WithTB routes records through tb.Log so they interleave with test output.
func WithTB(ctx context.Context, tb testing.TB) context.Context {
	return With(ctx, NewLogger(&tbWriter{tb}, minLevel()))
}

// Leveled re-gates the attached logger at level.
func Leveled(ctx context.Context, level slog.Leveler) context.Context {
	return With(ctx, slog.New(NewLevelHandler(level, from(ctx).Handler())))
}

func Debug(ctx context.Context, msg string, args ...any) {
	from(ctx).DebugContext(ctx, msg, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	from(ctx).InfoContext(ctx, msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	from(ctx).WarnContext(ctx, msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	from(ctx).ErrorContext(ctx, msg, args...)
}
