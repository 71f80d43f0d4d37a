// Package sender puts verification codes in front of users, either by mailing
// them directly or by handing them to the notification worker over the broker.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
)

const (
	DriverMail      = "mail"
	DriverMessaging = "messaging"

	defaultBackoff    = 200 * time.Millisecond
	maxBackoffBetween = 2 * time.Second
)

type sender interface {
	Send(ctx context.Context, d usecase.Delivery) error
}

// Retrying retries a sender with exponential backoff. Only the last error is
// returned.
type Retrying struct {
	next    sender
	retries uint64
	backoff time.Duration
	ins     instrument.Instrumentation
}

func NewRetrying(next sender, retries int, backoff time.Duration, ins instrument.Instrumentation) *Retrying {
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &Retrying{next: next, retries: uint64(max(retries, 0)), backoff: backoff, ins: ins}
}

func (r *Retrying) Send(ctx context.Context, d usecase.Delivery) error {
	ctx, span := r.ins.Tracer("otp.outbound.sender").Start(ctx, "Send")
	defer span.End()

	b := retry.NewExponential(r.backoff)
	b = retry.WithCappedDuration(maxBackoffBetween, b)
	b = retry.WithMaxRetries(r.retries, b)

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := r.next.Send(ctx, d)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		slog.WarnContext(ctx, "verification code delivery attempt failed", "challenge_id", d.ChallengeID, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		return fail(span, err)
	}
	return nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
