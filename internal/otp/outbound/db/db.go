package db

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
)

//go:embed schema.sql
var schema string

const (
	queryUpsert = `
INSERT INTO otp_challenges (identity_key, id, code_hash, display_name, issued_at, expires_at, attempts_remaining)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (identity_key) DO UPDATE SET
    id = EXCLUDED.id,
    code_hash = EXCLUDED.code_hash,
    display_name = EXCLUDED.display_name,
    issued_at = EXCLUDED.issued_at,
    expires_at = EXCLUDED.expires_at,
    attempts_remaining = EXCLUDED.attempts_remaining`

	queryDelete = `DELETE FROM otp_challenges WHERE identity_key = $1`

	querySelectForUpdate = `
SELECT id, code_hash, display_name, issued_at, expires_at, attempts_remaining
FROM otp_challenges WHERE identity_key = $1 FOR UPDATE`

	queryUpdateAttempts = `UPDATE otp_challenges SET attempts_remaining = $2 WHERE identity_key = $1 AND id = $3`

	queryDeleteByID = `DELETE FROM otp_challenges WHERE identity_key = $1 AND id = $2`

	queryDeleteExpired = `
DELETE FROM otp_challenges WHERE ctid IN (
    SELECT ctid FROM otp_challenges WHERE expires_at <= $1 LIMIT $2
)`
)

type DB struct {
	conn *pgxpool.Pool
	ins  instrument.Instrumentation
}

func NewDB(conn *pgxpool.Pool, ins instrument.Instrumentation) *DB {
	return &DB{conn: conn, ins: ins}
}

// Migrate creates the table and index when missing.
func (s *DB) Migrate(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "Migrate")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, schema)
	return err
}

// - 23505 unique violation → goerror.ErrConflict
// - 40001 serialization_failure, 40P01 deadlock_detected → left as is, retryable by caller
func (s *DB) mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return goerror.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return goerror.ErrConflict
	}

	return err
}

func (s *DB) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("otp.outbound.db").Start(ctx, name)
}

func (s *DB) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, goerror.ErrNotFound) && !errors.Is(err, goerror.ErrConflict) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *DB) Save(ctx context.Context, rec entity.OTP) (err error) {
	ctx, span := s.startSpan(ctx, "Save")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, queryUpsert,
		rec.IdentityKey,
		rec.ID,
		rec.CodeHash,
		rec.DisplayName,
		rec.IssuedAt,
		rec.ExpiresAt,
		rec.AttemptsRemaining,
	)
	return s.mapError(err)
}

func (s *DB) Delete(ctx context.Context, identityKey string) (err error) {
	ctx, span := s.startSpan(ctx, "Delete")
	defer func() { s.endSpan(span, err) }()

	_, err = s.conn.Exec(ctx, queryDelete, identityKey)
	return s.mapError(err)
}

func (s *DB) DeleteExpired(ctx context.Context, before time.Time, limit int) (n int64, err error) {
	ctx, span := s.startSpan(ctx, "DeleteExpired")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.conn.Exec(ctx, queryDeleteExpired, before, limit)
	if err != nil {
		return 0, s.mapError(err)
	}
	return tag.RowsAffected(), nil
}
