package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		unique  string
		payload string
	}{
		{"unique with payload", "\\fbuy|7", "buy", "7"},
		{"unique only", "\\fapprove", "approve", ""},
		{"payload with separator", "\\ffund|200", "fund", "200"},
		{"no prefix", "reject|a1b2c3d4e5", "reject", "a1b2c3d4e5"},
		{"empty", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unique, payload := ParseCallbackData(&tele.Callback{Data: tc.data})
			if unique != tc.unique {
				t.Fatalf("unique = %q, expected %q", unique, tc.unique)
			}
			if payload != tc.payload {
				t.Fatalf("payload = %q, expected %q", payload, tc.payload)
			}
		})
	}
}

func TestParseCallbackDataNil(t *testing.T) {
	unique, payload := ParseCallbackData(nil)
	if unique != "" || payload != "" {
		t.Fatalf("expected empty results for nil callback, got %q %q", unique, payload)
	}
}
