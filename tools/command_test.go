package tools

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateOutput(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{"short passes through", "hello", 10, "hello"},
		{"exact length passes through", "hello", 5, "hello"},
		{"ascii cut", "hello world", 5, "hello"},
		{"mid-rune cut backs off", "ab日本", 3, "ab"},
		{"rune boundary cut", "ab日本", 5, "ab日"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateOutput(tt.text, tt.max)
			if got != tt.want {
				t.Errorf("truncateOutput(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncateOutput(%q, %d) produced invalid UTF-8", tt.text, tt.max)
			}
		})
	}

	long := strings.Repeat("日", maxCommandOutput)
	got := truncateOutput(long, maxCommandOutput)
	if len(got) > maxCommandOutput {
		t.Errorf("truncated output is %d bytes, cap is %d", len(got), maxCommandOutput)
	}
	if !utf8.ValidString(got) {
		t.Error("truncated output is not valid UTF-8")
	}
}
