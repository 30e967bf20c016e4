package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// ANSI SGR codes.
const (
	sgrReset  = "\033[0m"
	sgrDim    = "\033[2m"
	sgrRed    = "\033[31m"
	sgrGreen  = "\033[32m"
	sgrYellow = "\033[33m"
	sgrCyan   = "\033[36m"
)

// PrettyHandler renders records as single colored lines for a human
// watching a terminal. Groups are flattened into plain attrs.
type PrettyHandler struct {
	w     io.Writer
	attrs []slog.Attr
}

func NewPrettyHandler(w io.Writer) *PrettyHandler {
	return &PrettyHandler{w: w}
}

func (h *PrettyHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(sgrDim + r.Time.Format(time.RFC3339) + sgrReset)
	fmt.Fprintf(&b, " %s%-5s%s %s", levelColor(r.Level), r.Level, sgrReset, r.Message)
	for _, a := range h.attrs {
		writeAttr(&b, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, a)
		return true
	})
	b.WriteByte('\n')
	_, err := io.WriteString(h.w, b.String())
	return err
}

func writeAttr(b *strings.Builder, a slog.Attr) {
	fmt.Fprintf(b, " %s=%v", a.Key, a.Value)
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...)
	return &h2
}

func (h *PrettyHandler) WithGroup(string) slog.Handler {
	return h
}

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return sgrRed
	case l >= slog.LevelWarn:
		return sgrYellow
	case l >= slog.LevelInfo:
		return sgrGreen
	default:
		return sgrCyan
	}
}
