package otp

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestNewNumeric(t *testing.T) {
	for _, n := range []int{6, 8} {
		g, err := NewNumeric(n)
		if err != nil {
			t.Fatalf("NewNumeric(%d) error = %v", n, err)
		}
		if g.Length() != n {
			t.Fatalf("Length() = %d, want %d", g.Length(), n)
		}
	}

	for _, n := range []int{0, 4, 7, 10} {
		if _, err := NewNumeric(n); !errors.Is(err, ErrUnsupportedDigits) {
			t.Fatalf("NewNumeric(%d) error = %v, want ErrUnsupportedDigits", n, err)
		}
	}
}

func TestNumeric_Generate(t *testing.T) {
	g, err := NewNumeric(6)
	if err != nil {
		t.Fatalf("NewNumeric() error = %v", err)
	}

	for range 200 {
		code, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("len(%q) = %d, want 6", code, len(code))
		}
		if strings.Trim(code, "0123456789") != "" {
			t.Fatalf("code %q contains non digits", code)
		}
	}
}

func TestNumeric_GenerateZeroPadded(t *testing.T) {
	// Arrange: an all-zero entropy source yields the smallest code.
	g, err := NewNumeric(6)
	if err != nil {
		t.Fatalf("NewNumeric() error = %v", err)
	}
	g.rand = bytes.NewReader(make([]byte, 64))

	// Act
	code, err := g.Generate()

	// Assert
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if code != "000000" {
		t.Fatalf("Generate() = %q, want 000000", code)
	}
}

func TestNumeric_GenerateEntropyFailure(t *testing.T) {
	g, err := NewNumeric(8)
	if err != nil {
		t.Fatalf("NewNumeric() error = %v", err)
	}
	g.rand = bytes.NewReader(nil)

	if _, err := g.Generate(); err == nil {
		t.Fatal("expected error from exhausted entropy source")
	}
}
