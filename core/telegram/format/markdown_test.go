package format

import "testing"

func TestEscapeMarkdownV1(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"plain", "plain"},
		{"Shop*Name", "Shop\\*Name"},
		{"under_score", "under\\_score"},
		{"tick`inside", "tick\\`inside"},
		{"link[label", "link\\[label"},
		{"back\\slash", "back\\\\slash"},
	}
	for _, tc := range cases {
		got, err := EscapeMarkdown(tc.in, MarkdownV1, "")
		if err != nil {
			t.Fatalf("escape %q: %v", tc.in, err)
		}
		if got != tc.expected {
			t.Fatalf("escape %q = %q, expected %q", tc.in, got, tc.expected)
		}
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	got, err := EscapeMarkdown("a.b!c", MarkdownV2, "")
	if err != nil {
		t.Fatalf("escape: %v", err)
	}
	if got != "a\\.b\\!c" {
		t.Fatalf("got %q", got)
	}
}

func TestEscapeMarkdownCodeEntity(t *testing.T) {
	got, err := EscapeMarkdown("KEY-1_a*b`c", MarkdownV1, "code")
	if err != nil {
		t.Fatalf("escape: %v", err)
	}
	// Only the backtick needs escaping inside a code entity.
	if got != "KEY-1_a*b\\`c" {
		t.Fatalf("got %q", got)
	}
}

func TestEscapeMarkdownUnsupportedVersion(t *testing.T) {
	if _, err := EscapeMarkdown("x", 3, ""); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}
