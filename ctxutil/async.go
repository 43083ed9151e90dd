package ctxutil

import (
	"context"
	"time"
)

// DefaultDetachedTimeout bounds store writes that must outlive their caller.
const DefaultDetachedTimeout = 5 * time.Second

// Detached returns a context that keeps the values of parent (trace, run and
// worker ids) but is not cancelled with it. Terminal writes use it so a run is
// still released when the execution context was cancelled by shutdown.
func Detached(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultDetachedTimeout
	}
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
