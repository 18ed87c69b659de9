// Package util holds small string helpers shared by the logging and tool layers.
package util

import (
	"strings"
	"unicode/utf8"
)

// TruncateRunes truncates a string to a maximum number of runes,
// appending an ellipsis if truncated.
func TruncateRunes(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxRunes]) + "…"
}

// SingleLine collapses every run of whitespace, newlines included, into one
// space so a value fits on a single log line.
func SingleLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
