package config

import (
	"testing"
	"time"
)

const sample = `
app:
  name: otpgate
modules:
  otp:
    ttl_seconds: 300
    generic_errors: true
    backoff_millis: 250
instrument:
  log_mask_fields: "code, otp,,password "
routes:
  map: "a:1, b:2,broken"
secret: "c2VjcmV0"
`

func newSample(t *testing.T) *Viper {
	t.Helper()

	cfg, err := NewViperFromBytes("yaml", []byte(sample))
	if err != nil {
		t.Fatalf("NewViperFromBytes() error = %v", err)
	}
	t.Cleanup(func() { _ = cfg.Close() })

	return cfg
}

func TestViper_Scalars(t *testing.T) {
	cfg := newSample(t)

	if got := cfg.GetString("app.name"); got != "otpgate" {
		t.Fatalf("GetString() = %q", got)
	}
	if !cfg.GetBool("modules.otp.generic_errors") {
		t.Fatal("GetBool() = false")
	}
	if got := cfg.GetSecond("modules.otp.ttl_seconds"); got != 5*time.Minute {
		t.Fatalf("GetSecond() = %v", got)
	}
	if got := cfg.GetMillisecond("modules.otp.backoff_millis"); got != 250*time.Millisecond {
		t.Fatalf("GetMillisecond() = %v", got)
	}
	if string(cfg.GetBinary("secret")) != "secret" {
		t.Fatalf("GetBinary() = %q", cfg.GetBinary("secret"))
	}
	if cfg.IsSet("missing.key") {
		t.Fatal("IsSet() should be false for missing key")
	}
}

func TestViper_GetArray(t *testing.T) {
	cfg := newSample(t)

	got := cfg.GetArray("instrument.log_mask_fields")
	want := []string{"code", "otp", "password"}

	if len(got) != len(want) {
		t.Fatalf("GetArray() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("GetArray()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if len(cfg.GetArray("missing")) != 0 {
		t.Fatal("GetArray() of missing key should be empty")
	}
}

func TestViper_GetMap(t *testing.T) {
	cfg := newSample(t)

	got := cfg.GetMap("routes.map")
	if len(got) != 2 || got["a"] != "1" || got["b"] != "2" {
		t.Fatalf("GetMap() = %v", got)
	}
}

func TestViper_EnvOverride(t *testing.T) {
	t.Setenv("OTPGATE_APP_NAME", "from-env")

	cfg := newSample(t)

	if got := cfg.GetString("app.name"); got != "from-env" {
		t.Fatalf("GetString() = %q, want env override", got)
	}
}

func TestNewViperFromBytes_RequiresType(t *testing.T) {
	if _, err := NewViperFromBytes(" ", nil); err == nil {
		t.Fatal("expected error for empty config type")
	}
}
