package inbound

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shandysiswandi/otpgate/internal/notification/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

func (h *MQHandler) ensureCorrelationID(ctx context.Context, msg messaging.Message) context.Context {
	if cID := msg.Header(keyOfCorrelationID); cID != "" {
		return instrument.SetCorrelationID(ctx, cID)
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

// OTPDeliveryNotification handles event.OTPDeliveryMessage. The body carries a
// plain code and is never logged.
func (h *MQHandler) OTPDeliveryNotification(ctx context.Context, msg messaging.Message) error {
	ctx = h.ensureCorrelationID(ctx, msg)

	ctx, span := h.ins.Tracer("notification.inbound.mq").Start(ctx, "OTPDeliveryNotification")
	defer span.End()

	var payload event.OTPDeliveryMessage
	if err := json.Unmarshal(msg.Body(), &payload); err != nil {
		slog.ErrorContext(ctx, "failed to parse message body of otp delivery", "msg_id", msg.ID(), "error", err)
		return nil
	}

	span.SetAttributes(attribute.Int64("otp.challenge_id", payload.ChallengeID))
	slog.InfoContext(ctx, "consume: otp delivery notification", "msg_id", msg.ID(), "challenge_id", payload.ChallengeID)

	return h.uc.ConsumeOTPDelivery(ctx, usecase.ConsumeOTPDeliveryInput{
		ChallengeID: payload.ChallengeID,
		Identity:    payload.Identity,
		DisplayName: payload.DisplayName,
		Code:        payload.Code,
		ExpiresIn:   time.Duration(payload.ExpiresInSeconds) * time.Second,
	})
}
