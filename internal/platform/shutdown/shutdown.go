package shutdown

import (
	"context"
	"os/signal"
	"syscall"
	"time"
)

// DefaultGrace bounds how long in-flight requests and queued tasks get to finish.
const DefaultGrace = 30 * time.Second

func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
