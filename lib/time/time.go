// Package time carries the context deadline helpers the CLI commands
// share.
package time

import (
	"context"
	"time"

	"github.com/dylanowen/archi-zoom/lib/env"
)

// WithTimeout bounds ctx by timeout, or by ARCHIZOOM_TIMEOUT when set. A
// non-positive timeout leaves ctx unbounded.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if seconds, ok := env.Timeout(); ok {
		timeout = time.Duration(seconds) * time.Second
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
