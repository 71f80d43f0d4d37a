package notification

import (
	"context"
	"errors"

	"github.com/shandysiswandi/otpgate/internal/notification/inbound"
	"github.com/shandysiswandi/otpgate/internal/notification/outbound/email"
	"github.com/shandysiswandi/otpgate/internal/notification/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

var ErrMissingMessaging = errors.New("notification: messaging is required")

type Dependency struct {
	Ctx        context.Context
	Messaging  messaging.Messaging
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	UUID       uid.StringID               `validate:"required"`
	Goroutine  *goroutine.Manager         `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
	Mail       mail.Mail                  `validate:"required"`
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}
	if dep.Messaging == nil {
		return ErrMissingMessaging
	}

	mailer := email.New(dep.Mail, email.Config{
		From:    dep.Config.GetString("modules.notification.mail.from"),
		Subject: dep.Config.GetString("modules.notification.mail.subject"),
		Brand:   dep.Config.GetString("modules.notification.mail.brand"),
	}, dep.Instrument)

	uc := usecase.New(usecase.Dependency{
		Validator:  dep.Validator,
		RepoMail:   mailer,
		Instrument: dep.Instrument,
	})

	if dep.Ctx != nil {
		inbound.RegisterMQConsumer(dep.Ctx, dep.Config, dep.Goroutine, dep.Messaging, dep.UUID, uc, dep.Instrument)
	}

	return nil
}
