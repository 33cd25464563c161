// Package security holds input hardening helpers for paths derived from
// user-supplied data.
package security

import "strings"

// maxFilenameLen bounds sanitised names.
const maxFilenameLen = 128

// SanitizeFilename maps s onto [A-Za-z0-9._-], collapsing each run of other
// characters into one underscore. Leading dots are dropped so the result is
// never hidden or a relative path component. An empty result becomes
// "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pendingUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		safe := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '_' || r == '-' || (r == '.' && b.Len() > 0)
		if !safe {
			if b.Len() > 0 {
				pendingUnderscore = true
			}
			continue
		}
		if pendingUnderscore {
			b.WriteByte('_')
			pendingUnderscore = false
		}
		b.WriteRune(r)
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
