package usecase

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

// Sweep removes records that expired more than ExpiredRetention ago, in
// batches, and returns how many were removed.
func (s *Usecase) Sweep(ctx context.Context) (int64, error) {
	ctx, span := s.startSpan(ctx, "Sweep")
	defer span.End()

	before := s.clock.Now().Add(-s.cfg.ExpiredRetention)
	batch := s.cfg.SweepBatchSize

	var total int64
	defer func() {
		if total > 0 {
			s.swept.Add(ctx, total)
		}
	}()

	for {
		n, err := s.repoStore.DeleteExpired(ctx, before, batch)
		total += n
		if err != nil {
			slog.ErrorContext(ctx, "failed to repo delete expired otp", "removed", total, "error", err)
			return total, goerror.NewServer(err)
		}
		if n < int64(batch) {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}

	if total > 0 {
		slog.InfoContext(ctx, "expired verification codes removed", "removed", total)
	}

	return total, nil
}
