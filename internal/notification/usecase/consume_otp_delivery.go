package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shandysiswandi/otpgate/internal/shared/template"
)

type ConsumeOTPDeliveryInput struct {
	ChallengeID int64  `validate:"required,gt=0"`
	Identity    string `validate:"required,email,max=254"`
	DisplayName string `validate:"required,max=100"`
	Code        string `validate:"required,digits,max=8"`
	ExpiresIn   time.Duration
}

// ConsumeOTPDelivery emails a code published by the otp module. Invalid
// payloads are dropped; send failures are returned so the broker redelivers.
func (s *Usecase) ConsumeOTPDelivery(ctx context.Context, in ConsumeOTPDeliveryInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeOTPDelivery")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		slog.ErrorContext(ctx, "otp delivery dropped, invalid payload", "challenge_id", in.ChallengeID, "error", err)
		return nil
	}

	err := s.repoMail.SendOTPCode(ctx, OTPCodeEmail{
		ChallengeID: in.ChallengeID,
		To:          in.Identity,
		DisplayName: in.DisplayName,
		Code:        in.Code,
		ExpiresIn:   in.ExpiresIn,
	})
	if errors.Is(err, template.ErrRender) {
		slog.ErrorContext(ctx, "otp delivery dropped, email does not render", "challenge_id", in.ChallengeID, "error", err)
		return nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to send otp email", "challenge_id", in.ChallengeID, "error", err)
		return err
	}

	slog.InfoContext(ctx, "otp email sent", "challenge_id", in.ChallengeID)
	return nil
}
