// Package email sends the verification code emails queued for the
// notification worker.
package email

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/otpgate/internal/notification/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/shared/template"
)

// Config shapes the code email. Empty fields fall back to the mail client's
// sender and the template defaults.
type Config struct {
	From    string
	Subject string
	Brand   string
}

type Mail struct {
	client mail.Mail
	cfg    Config
	ins    instrument.Instrumentation
}

func New(client mail.Mail, cfg Config, ins instrument.Instrumentation) *Mail {
	return &Mail{client: client, cfg: cfg, ins: ins}
}

// SendOTPCode renders and sends one code email. Render failures wrap
// template.ErrRender so the caller can drop the message instead of retrying.
func (m *Mail) SendOTPCode(ctx context.Context, e usecase.OTPCodeEmail) error {
	ctx, span := m.ins.Tracer("notification.outbound.email").Start(ctx, "SendOTPCode",
		trace.WithAttributes(attribute.Int64("otp.challenge_id", e.ChallengeID)))
	defer span.End()

	msg, err := template.OTPCodeMessage(m.cfg.From, e.To, template.OTPCodeData{
		DisplayName: e.DisplayName,
		Code:        e.Code,
		ExpiresIn:   e.ExpiresIn,
		Brand:       m.cfg.Brand,
		Subject:     m.cfg.Subject,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render")
		return err
	}

	if err := m.client.Send(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
