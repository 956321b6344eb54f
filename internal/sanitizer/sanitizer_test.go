package sanitizer

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanStripsMarkup(t *testing.T) {
	s := New()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text unchanged", "Mozilla/5.0 (X11; Linux x86_64)", "Mozilla/5.0 (X11; Linux x86_64)"},
		{"script removed", `<script>alert("xss")</script>Chrome`, "Chrome"},
		{"tags stripped", "<b>Jakarta</b>, Indonesia", "Jakarta, Indonesia"},
		{"img with handler removed", `<img src=x onerror=alert(1)>iPhone`, "iPhone"},
		{"whitespace collapsed", "  spaced \t\n out  ", "spaced out"},
		{"empty stays empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Clean(tt.input, 0); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanBoundsLength(t *testing.T) {
	s := New()

	long := strings.Repeat("a", 300)
	if got := s.Clean(long, 256); len(got) != 256 {
		t.Errorf("expected 256 chars, got %d", len(got))
	}
	if got := s.Clean(long, 0); len(got) != 300 {
		t.Errorf("maxLen 0 must not truncate, got %d chars", len(got))
	}
}

func TestCleanTruncatesOnRuneBoundary(t *testing.T) {
	s := New()

	// Three bytes per rune, so a byte limit of 8 falls mid-rune.
	input := strings.Repeat("語", 10)
	got := s.Clean(input, 8)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("語", 2); got != want {
		t.Errorf("Clean(%q, 8) = %q, want %q", input, got, want)
	}
	if len(got) > 8 {
		t.Errorf("truncated value is %d bytes, want at most 8", len(got))
	}
}

func TestCleanPtr(t *testing.T) {
	s := New()

	if got := s.CleanPtr("<script></script>", 64); got != nil {
		t.Errorf("expected nil for markup-only input, got %q", *got)
	}
	got := s.CleanPtr("Android 14; Pixel 8", 64)
	if got == nil || *got != "Android 14; Pixel 8" {
		t.Errorf("expected the cleaned value, got %v", got)
	}
}
