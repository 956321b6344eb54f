// Package sanitizer strips markup from client-supplied strings before they
// are persisted. User agents, device descriptions and location hints end up
// rendered in the admin session dashboard, so stored markup is a stored-XSS
// vector.
package sanitizer

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// InputSanitizer cleans untrusted request strings
type InputSanitizer struct {
	policy *bluemonday.Policy
}

// New creates an InputSanitizer with a strip-everything policy
func New() *InputSanitizer {
	return &InputSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean strips all HTML from s, collapses whitespace, and bounds the length.
// maxLen <= 0 means no length limit.
func (s *InputSanitizer) Clean(value string, maxLen int) string {
	cleaned := s.policy.Sanitize(value)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if maxLen > 0 && len(cleaned) > maxLen {
		// Cut on a rune boundary so truncation never stores invalid UTF-8.
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(cleaned[cut]) {
			cut--
		}
		cleaned = cleaned[:cut]
	}
	return cleaned
}

// CleanPtr is Clean for optional fields; empty results become nil
func (s *InputSanitizer) CleanPtr(value string, maxLen int) *string {
	cleaned := s.Clean(value, maxLen)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
