package sender

import (
	"context"
	"encoding/json"

	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

const keyOfCorrelationID string = "cID"

// Messaging hands the code to the notification worker. Success means the
// broker accepted the event, not that the email went out.
type Messaging struct {
	client messaging.Messaging
	ins    instrument.Instrumentation
}

func NewMessaging(client messaging.Messaging, ins instrument.Instrumentation) *Messaging {
	return &Messaging{client: client, ins: ins}
}

func (m *Messaging) Send(ctx context.Context, d usecase.Delivery) error {
	ctx, span := m.ins.Tracer("otp.outbound.sender").Start(ctx, "Messaging.Send")
	defer span.End()

	body, err := json.Marshal(event.OTPDeliveryMessage{
		ChallengeID:      d.ChallengeID,
		Identity:         d.Identity,
		DisplayName:      d.DisplayName,
		Code:             d.Code,
		ExpiresInSeconds: int64(d.ExpiresIn.Seconds()),
	})
	if err != nil {
		return fail(span, err)
	}

	cID := instrument.GetCorrelationID(ctx)
	if _, err := m.client.Publish(ctx, event.OTPDeliveryDestination, messaging.OutgoingMessage{
		Body:    body,
		Key:     []byte(d.Identity),
		Headers: []messaging.Header{{Key: keyOfCorrelationID, Value: []byte(cID)}},
	}); err != nil {
		return fail(span, err)
	}

	return nil
}
