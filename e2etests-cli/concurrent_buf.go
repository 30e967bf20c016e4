package e2etests_cli

import (
	"bytes"
	"sync"
)

// stderrWrapper collects a command's stderr so tests can poll it while
// the command is still running.
type stderrWrapper struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (e *stderrWrapper) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.Write(p)
}

func (e *stderrWrapper) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buf.Reset()
}

func (e *stderrWrapper) Read() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.String()
}
