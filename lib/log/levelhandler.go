package log

import (
	"context"
	"log/slog"
)

// LevelHandler gates a handler behind a minimum level. slog only levels
// its default logger; everything else is leveled by wrapping.
type LevelHandler struct {
	min  slog.Leveler
	next slog.Handler
}

// NewLevelHandler wraps next. Re-gating an already gated handler replaces
// its level instead of stacking.
func NewLevelHandler(min slog.Leveler, next slog.Handler) *LevelHandler {
	if lh, ok := next.(*LevelHandler); ok {
		next = lh.next
	}
	return &LevelHandler{min: min, next: next}
}

func (h *LevelHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.min.Level()
}

func (h *LevelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *LevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelHandler{min: h.min, next: h.next.WithAttrs(attrs)}
}

func (h *LevelHandler) WithGroup(name string) slog.Handler {
	return &LevelHandler{min: h.min, next: h.next.WithGroup(name)}
}
