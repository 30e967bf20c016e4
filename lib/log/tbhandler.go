package log

import (
	"strings"
	"testing"
)

// tbWriter feeds records through tb.Log so they land inside the test's
// own output.
type tbWriter struct {
	tb testing.TB
}

func (w *tbWriter) Write(p []byte) (int, error) {
	w.tb.Helper()
	w.tb.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
