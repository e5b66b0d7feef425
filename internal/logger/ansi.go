package logger

import "strings"

// stripAnsi removes \x1b[...m escape sequences, adapted from the teacher's
// stripAnsiCodes (_examples/thushan-olla/internal/logger/format.go): the
// file log must stay grep-friendly even when the terminal handler colours
// the same string.
func stripAnsi(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inEscape := false
	for i := 0; i < len(s); i++ {
		if !inEscape {
			if s[i] == '\x1b' && i+1 < len(s) && s[i+1] == '[' {
				inEscape = true
				i++
				continue
			}
			b.WriteByte(s[i])
			continue
		}
		if (s[i] >= 'A' && s[i] <= 'Z') || (s[i] >= 'a' && s[i] <= 'z') {
			inEscape = false
		}
	}
	return b.String()
}
