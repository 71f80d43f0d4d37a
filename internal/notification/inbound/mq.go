package inbound

import (
	"context"
	"log/slog"
	"slices"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

type consumer struct {
	name               string
	topic              string // destination where publisher sent message
	nsqConsumerName    string // for nsq
	natsConsumerName   string // for nats
	kafkaConsumerName  string // for kafka
	pubsubConsumerName string // for google pubsub
	handler            messaging.Handler
}

func consumers(h *MQHandler) []consumer {
	return []consumer{
		{
			name:               event.OTPDeliveryConsumerNotification,
			topic:              event.OTPDeliveryDestination,
			nsqConsumerName:    event.OTPDeliveryConsumerNotification,
			natsConsumerName:   event.OTPDeliveryConsumerNotification,
			kafkaConsumerName:  event.OTPDeliveryConsumerNotification,
			pubsubConsumerName: event.OTPDeliveryConsumerNotification,
			handler:            h.OTPDeliveryNotification,
		},
	}
}

func RegisterMQConsumer(
	ctx context.Context,
	cfg config.Config,
	routine *goroutine.Manager,
	messenger messaging.Messaging,
	uuid uid.StringID,
	uc uc,
	ins instrument.Instrumentation,
) {
	h := &MQHandler{uc: uc, uuid: uuid, ins: ins}

	enabled := cfg.GetArray("modules.notification.consumer_names")
	concurrency := cfg.GetInt("modules.notification.concurrency")
	if concurrency <= 0 {
		concurrency = 10
	}

	for _, c := range consumers(h) {
		if !slices.Contains(enabled, c.name) {
			continue
		}

		routine.Go(ctx, func(pCtx context.Context) error {
			slog.InfoContext(ctx, "Running job for handling consumer", "consumer", c.name)
			// handler errors are nacked so the broker redelivers
			return messenger.Consume(pCtx,
				c.topic,
				c.handler,
				messaging.WithChannel(c.nsqConsumerName),
				messaging.WithQueueGroup(c.natsConsumerName),
				messaging.WithGroup(c.kafkaConsumerName),
				messaging.WithSubscription(c.pubsubConsumerName),
				messaging.WithAutoAck(true),
				messaging.WithConcurrency(concurrency),
				messaging.WithMaxInFlight(concurrency),
			)
		})
	}
}
