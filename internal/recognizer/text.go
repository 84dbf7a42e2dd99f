package recognizer

import (
	"strings"

	"golang.org/x/text/width"
)

// NormalizeText cleans up decoded text: fullwidth ASCII variants fold to
// their halfwidth forms and surrounding whitespace is trimmed. CJK
// tokens are untouched.
func NormalizeText(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		p := width.LookupRune(r)
		if p.Kind() == width.EastAsianFullwidth {
			if folded := p.Folded(); folded != 0 {
				b.WriteRune(folded)
				continue
			}
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
