package digest

import (
	"strings"
	"unicode"
)

var markupEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Sanitize makes user text safe to embed between markup tags. Control
// characters (including CR, LF and TAB) become spaces, whitespace runs collapse
// to one space, the result is trimmed and & < > are escaped as entities.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '\uFFFE' || r == '\uFFFF' {
			return ' '
		}
		return r
	}, s)

	return markupEscaper.Replace(strings.Join(strings.Fields(s), " "))
}
