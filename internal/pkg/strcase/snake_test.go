package strcase

import "testing"

func TestToLowerSnake(t *testing.T) {
	tests := map[string]string{
		"":            "",
		"Identity":    "identity",
		"DisplayName": "display_name",
		"HTTPCode":    "http_code",
		"userID":      "user_id",
		"Code6Digits": "code6_digits",
	}

	for in, want := range tests {
		if got := ToLowerSnake(in); got != want {
			t.Errorf("ToLowerSnake(%q) = %q, want %q", in, got, want)
		}
	}
}
