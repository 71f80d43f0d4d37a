package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
)

type fakeUC struct {
	requestIn  usecase.RequestCodeInput
	requestErr error
	verifyIn   usecase.VerifyCodeInput
	verifyOut  *usecase.VerifyCodeOutput
	verifyErr  error
}

func (f *fakeUC) RequestCode(_ context.Context, in usecase.RequestCodeInput) (*usecase.RequestCodeOutput, error) {
	f.requestIn = in
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return &usecase.RequestCodeOutput{ExpiresIn: 5 * time.Minute}, nil
}

func (f *fakeUC) VerifyCode(_ context.Context, in usecase.VerifyCodeInput) (*usecase.VerifyCodeOutput, error) {
	f.verifyIn = in
	return f.verifyOut, f.verifyErr
}

func newTestServer(t *testing.T, uc uc, generic bool) http.Handler {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte("app: {}"))
	if err != nil {
		t.Fatalf("NewViperFromBytes() error = %v", err)
	}

	r := router.NewRouter(router.Config{Config: cfg, UUID: uid.NewUUID(), Instrument: instrument.NewNoop()})
	RegisterHTTPEndpoint(r, uc, HTTPConfig{GenericErrors: generic})
	return r
}

func do(t *testing.T, h http.Handler, path, body string) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %q", rec.Body.String())
	}
	return rec.Code, out
}

func TestHTTPEndpoint_RequestCode(t *testing.T) {
	// Arrange
	uc := &fakeUC{}
	h := newTestServer(t, uc, false)

	// Act
	status, body := do(t, h, "/otp/request", `{"identity":"jane@example.com","displayName":"Jane"}`)

	// Assert
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if uc.requestIn.Identity != "jane@example.com" || uc.requestIn.DisplayName != "Jane" {
		t.Fatalf("usecase input = %+v", uc.requestIn)
	}
	data, _ := body["data"].(map[string]any)
	if data["ok"] != true || data["expires_in_seconds"] != float64(300) {
		t.Fatalf("data = %v", data)
	}
	if body["message"] != "verification code sent" {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestHTTPEndpoint_VerifyCode(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	uc := &fakeUC{verifyOut: &usecase.VerifyCodeOutput{Verified: true, VerifiedAt: at, VerificationToken: "tok"}}
	h := newTestServer(t, uc, false)

	status, body := do(t, h, "/otp/verify", `{"identity":"jane@example.com","code":"123456"}`)

	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if uc.verifyIn.Code != "123456" {
		t.Fatalf("usecase input = %+v", uc.verifyIn)
	}
	data, _ := body["data"].(map[string]any)
	if data["ok"] != true || data["verification_token"] != "tok" {
		t.Fatalf("data = %v", data)
	}
}

func TestHTTPEndpoint_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		generic bool
		status  int
		kind    string
		message string
	}{
		{name: "not found", err: entity.ErrNotFound(), status: http.StatusNotFound, kind: entity.KindNotFound},
		{name: "invalid code", err: entity.ErrInvalidCode(), status: http.StatusConflict, kind: entity.KindInvalidCode},
		{name: "expired", err: entity.ErrExpired(), status: http.StatusGone, kind: entity.KindExpired},
		{name: "store", err: entity.ErrStoreUnavailable(errors.New("dial tcp 10.0.0.3:6379")), status: http.StatusBadGateway, kind: entity.KindStoreUnavailable, message: "verification service unavailable"},
		{name: "timeout", err: entity.ErrTimeout(context.DeadlineExceeded), status: http.StatusGatewayTimeout, kind: entity.KindTimeout},
		{name: "generic not found", err: entity.ErrNotFound(), generic: true, status: http.StatusConflict, kind: entity.KindInvalidCode, message: entity.MessageGeneric},
		{name: "generic expired", err: entity.ErrExpired(), generic: true, status: http.StatusConflict, kind: entity.KindInvalidCode, message: entity.MessageGeneric},
		{name: "generic keeps infra errors", err: entity.ErrTimeout(nil), generic: true, status: http.StatusGatewayTimeout, kind: entity.KindTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeUC{verifyErr: tt.err}, tt.generic)

			status, body := do(t, h, "/otp/verify", `{"identity":"jane@example.com","code":"123456"}`)

			if status != tt.status {
				t.Fatalf("status = %d, want %d", status, tt.status)
			}
			if body["kind"] != tt.kind {
				t.Fatalf("kind = %v, want %s", body["kind"], tt.kind)
			}
			if tt.message != "" && body["message"] != tt.message {
				t.Fatalf("message = %v, want %s", body["message"], tt.message)
			}
		})
	}
}

func TestHTTPEndpoint_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "not json", path: "/otp/request", body: `identity=jane`},
		{name: "unknown field", path: "/otp/request", body: `{"identity":"a@x.co","displayName":"A","admin":true}`},
		{name: "trailing data", path: "/otp/verify", body: `{"identity":"a@x.co","code":"1"} {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeUC{}, false)

			status, body := do(t, h, tt.path, tt.body)

			if status != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", status)
			}
			if body["kind"] != entity.KindInvalidArgument {
				t.Fatalf("kind = %v", body["kind"])
			}
		})
	}
}
