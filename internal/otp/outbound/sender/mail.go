package sender

import (
	"context"

	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/shared/template"
)

type MailConfig struct {
	// From overrides the mail client's default sender.
	From    string
	Subject string
	Brand   string
}

// Mail renders the code email and sends it in the request path.
type Mail struct {
	client mail.Mail
	cfg    MailConfig
	ins    instrument.Instrumentation
}

func NewMail(client mail.Mail, cfg MailConfig, ins instrument.Instrumentation) *Mail {
	return &Mail{client: client, cfg: cfg, ins: ins}
}

func (m *Mail) Send(ctx context.Context, d usecase.Delivery) error {
	ctx, span := m.ins.Tracer("otp.outbound.sender").Start(ctx, "Mail.Send")
	defer span.End()

	msg, err := template.OTPCodeMessage(m.cfg.From, d.Identity, template.OTPCodeData{
		DisplayName: d.DisplayName,
		Code:        d.Code,
		ExpiresIn:   d.ExpiresIn,
		Brand:       m.cfg.Brand,
		Subject:     m.cfg.Subject,
	})
	if err != nil {
		return fail(span, err)
	}

	if err := m.client.Send(ctx, msg); err != nil {
		return fail(span, err)
	}

	return nil
}
