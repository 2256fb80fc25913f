// Package logutil has helpers for writing untrusted input to log lines.
package logutil

import "strings"

// Sanitize strips newlines and control characters from user-provided text
// so a crafted command string cannot inject fake log entries.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteRune(' ')
		case r < 32:
			// drop other control characters
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Truncate shortens s to at most n runes, appending an ellipsis marker
// when anything was cut. Used for logging long command lines.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
