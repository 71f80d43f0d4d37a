package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/notification/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goroutine"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

type fakeUC struct {
	mu   sync.Mutex
	errs []error
	got  chan usecase.ConsumeOTPDeliveryInput
	cIDs chan string
}

func newFakeUC(errs ...error) *fakeUC {
	return &fakeUC{
		errs: errs,
		got:  make(chan usecase.ConsumeOTPDeliveryInput, 8),
		cIDs: make(chan string, 8),
	}
}

func (f *fakeUC) ConsumeOTPDelivery(ctx context.Context, in usecase.ConsumeOTPDeliveryInput) error {
	f.got <- in
	f.cIDs <- instrument.GetCorrelationID(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func newConfig(t *testing.T, yaml string) config.Config {
	t.Helper()
	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func publishDelivery(t *testing.T, broker messaging.Messaging, headers ...messaging.Header) {
	t.Helper()

	body, err := json.Marshal(event.OTPDeliveryMessage{
		ChallengeID:      7,
		Identity:         "ana@example.com",
		DisplayName:      "Ana",
		Code:             "123456",
		ExpiresInSeconds: 300,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := broker.Publish(context.Background(), event.OTPDeliveryDestination, messaging.OutgoingMessage{
		Body:    body,
		Headers: headers,
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for handler")
	}
	var zero T
	return zero
}

func TestRegisterMQConsumer_DeliversToUsecase(t *testing.T) {
	// Arrange
	broker := messaging.NewMemory(messaging.MemoryConfig{})
	defer broker.Close()
	routine := goroutine.NewManager(4)
	ctx, cancel := context.WithCancel(context.Background())
	uc := newFakeUC()
	cfg := newConfig(t, "modules:\n  notification:\n    consumer_names: otp_delivery_notification\n")

	publishDelivery(t, broker, messaging.Header{Key: keyOfCorrelationID, Value: []byte("corr-1")})

	// Act
	RegisterMQConsumer(ctx, cfg, routine, broker, uid.NewUUID(), uc, instrument.NewNoop())
	in := receive(t, uc.got)
	cID := receive(t, uc.cIDs)
	cancel()

	// Assert
	if err := routine.Wait(); err != nil {
		t.Fatalf("consumer returned error: %v", err)
	}
	if in.ChallengeID != 7 || in.Identity != "ana@example.com" || in.Code != "123456" {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.ExpiresIn != 5*time.Minute {
		t.Fatalf("ExpiresIn = %v, want 5m", in.ExpiresIn)
	}
	if cID != "corr-1" {
		t.Fatalf("correlation id = %q, want corr-1", cID)
	}
}

func TestRegisterMQConsumer_RedeliversOnFailure(t *testing.T) {
	// Arrange
	broker := messaging.NewMemory(messaging.MemoryConfig{MaxRedeliveries: 3})
	defer broker.Close()
	routine := goroutine.NewManager(4)
	ctx, cancel := context.WithCancel(context.Background())
	uc := newFakeUC(errors.New("smtp down"))
	cfg := newConfig(t, "modules:\n  notification:\n    consumer_names: otp_delivery_notification\n")

	publishDelivery(t, broker)

	// Act
	RegisterMQConsumer(ctx, cfg, routine, broker, uid.NewUUID(), uc, instrument.NewNoop())
	first := receive(t, uc.got)
	second := receive(t, uc.got)
	cancel()
	_ = routine.Wait()

	// Assert
	if first.ChallengeID != second.ChallengeID {
		t.Fatalf("redelivered a different message: %d vs %d", first.ChallengeID, second.ChallengeID)
	}
	if cID := receive(t, uc.cIDs); cID == "" {
		t.Fatalf("expected a generated correlation id")
	}
}

func TestRegisterMQConsumer_DisabledConsumerDoesNotRun(t *testing.T) {
	// Arrange
	routine := goroutine.NewManager(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := messaging.NewMemory(messaging.MemoryConfig{})
	defer broker.Close()

	// Act
	RegisterMQConsumer(ctx, newConfig(t, "app: {}"), routine, broker, uid.NewUUID(), newFakeUC(), instrument.NewNoop())
	cancel()

	// Assert
	if err := routine.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOTPDeliveryNotification_PoisonMessageIsAcked(t *testing.T) {
	// Arrange
	broker := messaging.NewMemory(messaging.MemoryConfig{})
	defer broker.Close()
	uc := newFakeUC()
	h := &MQHandler{uc: uc, uuid: uid.NewUUID(), ins: instrument.NewNoop()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := broker.Publish(ctx, event.OTPDeliveryDestination, messaging.OutgoingMessage{Body: []byte("{not json")}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	handled := make(chan error, 1)
	go func() {
		_ = broker.Consume(ctx, event.OTPDeliveryDestination, func(ctx context.Context, msg messaging.Message) error {
			err := h.OTPDeliveryNotification(ctx, msg)
			handled <- err
			return err
		}, messaging.WithGroup("test"), messaging.WithAutoAck(true))
	}()

	// Act
	err := receive(t, handled)

	// Assert
	if err != nil {
		t.Fatalf("poison message should not be retried, got %v", err)
	}
	select {
	case in := <-uc.got:
		t.Fatalf("usecase should not be called, got %+v", in)
	default:
	}
}
