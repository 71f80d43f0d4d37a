// Package cache stores OTP records in Redis hashes keyed by identity.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
)

const (
	keyPrefix = "otp:"

	fieldID          = "id"
	fieldCodeHash    = "code_hash"
	fieldDisplayName = "display_name"
	fieldIssuedAt    = "issued_at"
	fieldExpiresAt   = "expires_at"
	fieldAttempts    = "attempts"

	scanCount = 200

	txRetryBase = 2 * time.Millisecond
	txRetryCap  = 50 * time.Millisecond
	// txRetryBudget bounds contention retries when ctx carries no deadline.
	txRetryBudget = 5 * time.Second
)

// deleteIfExpired removes KEYS[1] when its expires_at (unix millis) is at or
// before ARGV[1].
var deleteIfExpired = redis.NewScript(`
local exp = redis.call("HGET", KEYS[1], "expires_at")
if exp and tonumber(exp) <= tonumber(ARGV[1]) then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Store struct {
	client *redis.Client
	// retention keeps an expired record readable before Redis evicts the key.
	retention time.Duration
	ins       instrument.Instrumentation
}

func New(client *redis.Client, retention time.Duration, ins instrument.Instrumentation) *Store {
	return &Store{client: client, retention: max(retention, 0), ins: ins}
}

func key(identityKey string) string { return keyPrefix + identityKey }

func (s *Store) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("otp.outbound.cache").Start(ctx, name,
		trace.WithAttributes(attribute.String("db.system", "redis")))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (s *Store) Save(ctx context.Context, rec entity.OTP) error {
	ctx, span := s.startSpan(ctx, "Save")
	defer span.End()

	k := key(rec.IdentityKey)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k)
		p.HSet(ctx, k, encode(rec))
		p.PExpireAt(ctx, k, rec.ExpiresAt.Add(s.retention))
		return nil
	})
	if err != nil {
		return fail(span, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, identityKey string) error {
	ctx, span := s.startSpan(ctx, "Delete")
	defer span.End()

	if err := s.client.Del(ctx, key(identityKey)).Err(); err != nil {
		return fail(span, err)
	}
	return nil
}

// Mutate runs fn inside WATCH/MULTI and retries with jittered backoff when
// another client touched the key in between. Retries last until ctx is done;
// without a deadline they stop after txRetryBudget with goerror.ErrConflict.
func (s *Store) Mutate(ctx context.Context, identityKey string, fn func(*entity.OTP) entity.Mutation) error {
	ctx, span := s.startSpan(ctx, "Mutate")
	defer span.End()

	k := key(identityKey)
	txf := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, k).Result()
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			return goerror.ErrNotFound
		}

		rec, err := decode(identityKey, vals)
		if err != nil {
			return err
		}

		switch fn(&rec) {
		case entity.MutationUpdate:
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.HSet(ctx, k, encode(rec))
				return nil
			})
		case entity.MutationDelete:
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Del(ctx, k)
				return nil
			})
		}
		return err
	}

	b := retry.NewExponential(txRetryBase)
	b = retry.WithJitterPercent(50, b)
	b = retry.WithCappedDuration(txRetryCap, b)
	if _, ok := ctx.Deadline(); !ok {
		b = retry.WithMaxDuration(txRetryBudget, b)
	}

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			span.AddEvent("tx retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
			return retry.RetryableError(err)
		}
		return err
	})
	switch {
	case err == nil, errors.Is(err, goerror.ErrNotFound):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return fail(span, fmt.Errorf("%w: %w", goerror.ErrConflict, err))
	default:
		return fail(span, err)
	}
}

// DeleteExpired scans otp:* keys and deletes those whose code expired at or
// before the given time. Keys also carry a Redis TTL, so this only shortens the
// retention window.
func (s *Store) DeleteExpired(ctx context.Context, before time.Time, limit int) (int64, error) {
	ctx, span := s.startSpan(ctx, "DeleteExpired")
	defer span.End()

	cutoff := before.UnixMilli()

	var (
		removed int64
		cursor  uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"*", scanCount).Result()
		if err != nil {
			return removed, fail(span, err)
		}

		for _, k := range keys {
			n, err := deleteIfExpired.Run(ctx, s.client, []string{k}, cutoff).Int64()
			if err != nil {
				return removed, fail(span, err)
			}
			removed += n
			if limit > 0 && removed >= int64(limit) {
				return removed, nil
			}
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func encode(rec entity.OTP) map[string]any {
	return map[string]any{
		fieldID:          rec.ID,
		fieldCodeHash:    rec.CodeHash,
		fieldDisplayName: rec.DisplayName,
		fieldIssuedAt:    rec.IssuedAt.UnixMilli(),
		fieldExpiresAt:   rec.ExpiresAt.UnixMilli(),
		fieldAttempts:    rec.AttemptsRemaining,
	}
}

func decode(identityKey string, vals map[string]string) (entity.OTP, error) {
	rec := entity.OTP{
		IdentityKey: identityKey,
		CodeHash:    vals[fieldCodeHash],
		DisplayName: vals[fieldDisplayName],
	}

	var err error
	if rec.ID, err = strconv.ParseInt(vals[fieldID], 10, 64); err != nil {
		return rec, fmt.Errorf("cache: corrupt %s: %w", fieldID, err)
	}
	issued, err := strconv.ParseInt(vals[fieldIssuedAt], 10, 64)
	if err != nil {
		return rec, fmt.Errorf("cache: corrupt %s: %w", fieldIssuedAt, err)
	}
	expires, err := strconv.ParseInt(vals[fieldExpiresAt], 10, 64)
	if err != nil {
		return rec, fmt.Errorf("cache: corrupt %s: %w", fieldExpiresAt, err)
	}
	if rec.AttemptsRemaining, err = strconv.Atoi(vals[fieldAttempts]); err != nil {
		return rec, fmt.Errorf("cache: corrupt %s: %w", fieldAttempts, err)
	}

	rec.IssuedAt = time.UnixMilli(issued).UTC()
	rec.ExpiresAt = time.UnixMilli(expires).UTC()
	return rec, nil
}
