package validators

import "strings"

// SanitizeString trims surrounding whitespace and truncates to maxLen
// bytes. A maxLen of zero disables truncation.
func SanitizeString(input string, maxLen int) string {
	s := strings.TrimSpace(input)
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
