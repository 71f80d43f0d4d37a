package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
)

// Mutate locks the row with SELECT ... FOR UPDATE, so concurrent callers for
// the same identity run fn one after another.
func (s *DB) Mutate(ctx context.Context, identityKey string, fn func(*entity.OTP) entity.Mutation) (err error) {
	ctx, span := s.startSpan(ctx, "Mutate")
	defer func() { s.endSpan(span, err) }()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rollback", "error", rErr)
		}
	}()

	rec := entity.OTP{IdentityKey: identityKey}
	if err := tx.QueryRow(ctx, querySelectForUpdate, identityKey).Scan(
		&rec.ID,
		&rec.CodeHash,
		&rec.DisplayName,
		&rec.IssuedAt,
		&rec.ExpiresAt,
		&rec.AttemptsRemaining,
	); err != nil {
		return s.mapError(err)
	}

	id := rec.ID
	switch fn(&rec) {
	case entity.MutationUpdate:
		_, err = tx.Exec(ctx, queryUpdateAttempts, identityKey, rec.AttemptsRemaining, id)
	case entity.MutationDelete:
		_, err = tx.Exec(ctx, queryDeleteByID, identityKey, id)
	default:
		return nil
	}
	if err != nil {
		return s.mapError(err)
	}

	return s.mapError(tx.Commit(ctx))
}
