package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims the input, drops control characters other than newlines
// and cuts it to maxLen runes. Reasons and notes are often typed in Hindi or
// Tamil, so the cut never splits a multi-byte character.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, strings.TrimSpace(input))

	runes := []rune(cleaned)
	if maxLen > 0 && len(runes) > maxLen {
		runes = runes[:maxLen]
	}
	return strings.TrimSpace(string(runes))
}

// SanitizeOptional applies SanitizeString and maps blank results to nil.
func SanitizeOptional(input *string, maxLen int) *string {
	if input == nil {
		return nil
	}
	cleaned := SanitizeString(*input, maxLen)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
