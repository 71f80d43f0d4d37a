package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/shandysiswandi/otpgate/internal/pkg/stacktrace"
)

// dispatch runs handler for d and, with auto-ack, settles it from the result.
func dispatch(ctx context.Context, driver string, d *delivery, handler Handler, autoAck bool) error {
	herr := callHandler(ctx, driver, func() error { return handler(ctx, d) })

	if !autoAck || d.isSettled() {
		return herr
	}
	if herr != nil {
		if err := d.Nack(ctx); err != nil {
			slog.WarnContext(ctx, "failed to nack message", "driver", driver, "topic", d.topic, "error", err)
		}
		return herr
	}
	return d.Ack(ctx)
}

func callHandler(ctx context.Context, driver string, fn func() error) (err error) {
	defer func() {
		rvr := recover()
		if rvr == nil {
			return
		}

		stack := debug.Stack()
		if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
			slog.ErrorContext(ctx, "panic in messaging handler", "driver", driver, "panic", rvr, "stack", paths)
		} else {
			slog.ErrorContext(ctx, "panic in messaging handler", "driver", driver, "panic", rvr, "stack", string(stack))
		}
		err = fmt.Errorf("messaging: panic in %s handler: %v", driver, rvr)
	}()

	return fn()
}

// workerPool drains in with n workers until it is closed.
func workerPool(n int, in <-chan *delivery, fn func(*delivery)) *sync.WaitGroup {
	var wg sync.WaitGroup
	for range max(n, 1) {
		wg.Go(func() {
			for d := range in {
				fn(d)
			}
		})
	}
	return &wg
}
