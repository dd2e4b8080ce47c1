package validator

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// Sanitize trims, collapses internal whitespace, strips markup and removes
// characters that could be misused in rendered output. Sanitize(Sanitize(s))
// equals Sanitize(s).
func Sanitize(s string) string {
	out := collapseWhitespace(s)
	out = strictPolicy.Sanitize(out)

	// Escaped input such as "&amp;lt;" unwraps one layer per round.
	for {
		next := stripUnsafe(html.UnescapeString(out))
		if next == out {
			break
		}
		out = next
	}
	return collapseWhitespace(out)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stripUnsafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '`', '{', '}':
			return -1
		}
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		if r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
}
