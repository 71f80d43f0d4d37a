package instrument

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	return out
}

func TestLogHandler_MasksSensitiveKeys(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, &Config{
		ServiceName: "otpgate",
		MaskFields:  []string{"Code", " verification_token "},
	}, nil))
	ctx := SetCorrelationID(context.Background(), "cid-1")

	// Act
	logger.InfoContext(ctx, "verify",
		"code", "123456",
		"body", map[string]any{"identity": "a@b.c", "code": "654321"},
		"raw", `{"verification_token":"abc","ok":true}`,
		"challenge_id", int64(42),
	)

	// Assert
	line := decodeLine(t, &buf)
	if line["code"] != masked {
		t.Errorf("code = %v, want masked", line["code"])
	}
	body, _ := line["body"].(map[string]any)
	if body["code"] != masked || body["identity"] != "a@b.c" {
		t.Errorf("body = %v", body)
	}
	if line["raw"] != `{"ok":true,"verification_token":"***"}` {
		t.Errorf("raw = %v", line["raw"])
	}
	if line["_cID"] != "cid-1" || line["service"] != "otpgate" {
		t.Errorf("context attrs missing: %v", line)
	}
	if _, ok := line["severity"]; !ok {
		t.Errorf("severity key missing: %v", line)
	}
}

func TestLogHandler_WithAttrsMasked(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, &Config{MaskFields: []string{"otp"}}, nil)).With("otp", "999999")

	logger.Info("hello")

	if line := decodeLine(t, &buf); line["otp"] != masked {
		t.Fatalf("otp = %v, want masked", line["otp"])
	}
}

func TestLogHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newLogHandler(&buf, &Config{LogLevel: "warn"}, nil))

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}

	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatal("warn not logged")
	}
}

func TestCorrelationID(t *testing.T) {
	if GetCorrelationID(context.Background()) != "" {
		t.Fatal("expected empty correlation id")
	}
	ctx := SetCorrelationID(context.Background(), "x")
	if GetCorrelationID(ctx) != "x" {
		t.Fatal("correlation id not stored")
	}
}
