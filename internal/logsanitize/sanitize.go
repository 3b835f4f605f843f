// Package logsanitize provides helpers for sanitizing untrusted values before logging.
package logsanitize

import "strings"

// maxFieldLen bounds how much of an untrusted value ends up in a log line.
const maxFieldLen = 256

// Sanitize removes control characters from log field values to reduce
// the risk of log injection (CWE-117) and truncates overly long values.
//
// Stripped ranges:
//   - C0 controls 0x00-0x1F (except horizontal tab 0x09)
//   - DEL 0x7F and C1 controls 0x80-0x9F
func Sanitize(s string) string {
	clean := strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' {
			return '_'
		}
		if r >= 0x7f && r <= 0x9f {
			return '_'
		}
		return r
	}, s)

	if len(clean) > maxFieldLen {
		return clean[:maxFieldLen] + "..."
	}
	return clean
}

// Mask hides a secret (authorization code, token, state) so only its length
// and a short prefix reach the logs. Values of 8 characters or fewer are
// fully masked.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return Sanitize(secret[:4]) + strings.Repeat("*", 8)
}
