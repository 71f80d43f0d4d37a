package email

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/notification/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
)

type fakeClient struct {
	sent []mail.Message
	err  error
}

func (f *fakeClient) Send(_ context.Context, msg mail.Message) error {
	f.sent = append(f.sent, msg)
	return f.err
}

func (*fakeClient) Close() error { return nil }

func codeEmail() usecase.OTPCodeEmail {
	return usecase.OTPCodeEmail{
		ChallengeID: 7,
		To:          "ana@example.com",
		DisplayName: "Ana",
		Code:        "013579",
		ExpiresIn:   10 * time.Minute,
	}
}

func TestMail_SendOTPCode(t *testing.T) {
	// Arrange
	client := &fakeClient{}
	m := New(client, Config{From: "no-reply@tokicard.test", Subject: "Sign-in code", Brand: "Acme"}, instrument.NewNoop())

	// Act
	err := m.SendOTPCode(context.Background(), codeEmail())

	// Assert
	if err != nil {
		t.Fatalf("SendOTPCode() error = %v", err)
	}
	if len(client.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(client.sent))
	}
	msg := client.sent[0]
	if msg.From != "no-reply@tokicard.test" || len(msg.To) != 1 || msg.To[0] != "ana@example.com" {
		t.Fatalf("unexpected envelope: %+v", msg)
	}
	if msg.Subject != "Sign-in code" {
		t.Fatalf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.TextBody, "013579") || !strings.Contains(msg.HTMLBody, "013579") {
		t.Fatal("code missing from bodies")
	}
	if !strings.Contains(msg.TextBody, "10 minutes") || !strings.Contains(msg.TextBody, "Acme") {
		t.Fatalf("expiry or brand missing from text body: %q", msg.TextBody)
	}
}

func TestMail_SendOTPCode_ClientError(t *testing.T) {
	boom := errors.New("smtp down")
	m := New(&fakeClient{err: boom}, Config{}, instrument.NewNoop())

	err := m.SendOTPCode(context.Background(), codeEmail())

	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}
