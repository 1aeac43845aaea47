package core

import (
	"strings"
	"unicode"
)

// NormalizeMAC maps the usual hardware address spellings onto one form:
// upper case, no '.', '-' or whitespace, and colon separated when the rest
// is a bare 12-digit hex string.
func NormalizeMAC(mac string) string {
	s := strings.Map(func(r rune) rune {
		if r == '.' || r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, mac)

	if strings.Contains(s, ":") || len(s) != 12 || !isHex(s) {
		return s
	}

	var b strings.Builder
	b.Grow(17)
	for i := 0; i < len(s); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(s[i : i+2])
	}
	return b.String()
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
