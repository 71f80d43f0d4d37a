package sender

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

type fakeSender struct {
	calls int
	errs  []error
}

func (f *fakeSender) Send(context.Context, usecase.Delivery) error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type fakeMail struct {
	sent []mail.Message
	err  error
}

func (f *fakeMail) Send(_ context.Context, msg mail.Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeMail) Close() error { return nil }

func TestRetrying(t *testing.T) {
	tests := []struct {
		name      string
		retries   int
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{name: "first try", retries: 2, wantCalls: 1},
		{name: "recovers", retries: 2, errs: []error{errors.New("a"), errors.New("b")}, wantCalls: 3},
		{name: "gives up", retries: 1, errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}, wantCalls: 2, wantErr: true},
		{name: "no retries", retries: 0, errs: []error{errors.New("a")}, wantCalls: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			next := &fakeSender{errs: tt.errs}
			r := NewRetrying(next, tt.retries, time.Millisecond, instrument.NewNoop())

			// Act
			err := r.Send(context.Background(), usecase.Delivery{ChallengeID: 1})

			// Assert
			if (err != nil) != tt.wantErr {
				t.Fatalf("Send() error = %v, wantErr %v", err, tt.wantErr)
			}
			if next.calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", next.calls, tt.wantCalls)
			}
		})
	}
}

func TestMail_Send(t *testing.T) {
	client := &fakeMail{}
	m := NewMail(client, MailConfig{From: "Tokicard <onboarding@resend.dev>"}, instrument.NewNoop())

	err := m.Send(context.Background(), usecase.Delivery{
		Identity:    "jane@example.com",
		DisplayName: "Jane",
		Code:        "004217",
		ExpiresIn:   5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if len(client.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(client.sent))
	}
	msg := client.sent[0]
	if msg.To[0] != "jane@example.com" || msg.From != "Tokicard <onboarding@resend.dev>" {
		t.Fatalf("unexpected envelope: %+v", msg)
	}
	if !strings.Contains(msg.HTMLBody, "004217") || !strings.Contains(msg.TextBody, "004217") {
		t.Fatal("code missing from body")
	}
}

func TestMessaging_Send(t *testing.T) {
	broker := messaging.NewMemory(messaging.MemoryConfig{})
	t.Cleanup(func() { _ = broker.Close() })

	ctx := instrument.SetCorrelationID(context.Background(), "cid-1")
	s := NewMessaging(broker, instrument.NewNoop())

	if err := s.Send(ctx, usecase.Delivery{ChallengeID: 7, Identity: "a@x.co", Code: "123456", ExpiresIn: time.Minute}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got := make(chan messaging.Message, 1)
	cctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = broker.Consume(cctx, event.OTPDeliveryDestination, func(_ context.Context, msg messaging.Message) error {
			got <- msg
			return nil
		})
	}()

	select {
	case msg := <-got:
		var payload event.OTPDeliveryMessage
		if err := json.Unmarshal(msg.Body(), &payload); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if payload.ChallengeID != 7 || payload.Code != "123456" || payload.ExpiresInSeconds != 60 {
			t.Fatalf("payload = %+v", payload)
		}
		if msg.Header(keyOfCorrelationID) != "cid-1" {
			t.Fatalf("cID header = %q", msg.Header(keyOfCorrelationID))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event not published")
	}
}
