package inbound

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
)

type sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Reaper periodically removes expired codes. A tick that fires while the
// previous sweep is still running is skipped.
type Reaper struct {
	uc       sweeper
	routine  *goroutine.Manager
	interval time.Duration
	running  atomic.Bool
}

func NewReaper(uc sweeper, routine *goroutine.Manager, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{uc: uc, routine: routine, interval: interval}
}

// RegisterReaper starts the reaper on the goroutine manager until ctx ends.
func RegisterReaper(ctx context.Context, routine *goroutine.Manager, uc sweeper, interval time.Duration) *Reaper {
	r := NewReaper(uc, routine, interval)
	routine.Go(ctx, r.Run)
	return r
}

func (r *Reaper) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "otp reaper started", "interval", r.interval.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "otp reaper stopped")
			return nil
		case <-ticker.C:
			r.trigger(ctx)
		}
	}
}

// trigger starts a sweep unless one is in flight. It reports whether a sweep
// was started.
func (r *Reaper) trigger(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		slog.WarnContext(ctx, "otp reaper still sweeping, tick skipped")
		return false
	}

	started := r.routine.Go(ctx, func(ctx context.Context) error {
		defer r.running.Store(false)

		if _, err := r.uc.Sweep(ctx); err != nil {
			slog.ErrorContext(ctx, "otp reaper sweep failed", "error", err)
		}
		return nil
	})
	if !started {
		r.running.Store(false)
	}
	return started
}
