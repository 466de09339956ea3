package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// combiningDiacriticalMarks is the Unicode block U+0300..U+036F.
var combiningDiacriticalMarks = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0300, Hi: 0x036f, Stride: 1}},
}

// NormalizeText folds free text into the form keyword rules are written in:
// diacritics stripped, lowercased, "đ" mapped to "d", surrounding space trimmed.
func NormalizeText(input string) string {
	if input == "" {
		return ""
	}

	// transform.Chain keeps state, so each call builds its own chain.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(combiningDiacriticalMarks)))
	stripped, _, err := transform.String(t, input)
	if err != nil {
		stripped = input
	}

	stripped = strings.ToLower(stripped)
	// "đ" is a distinct letter, not d plus a mark, so NFD leaves it alone.
	stripped = strings.ReplaceAll(stripped, "đ", "d")

	return strings.TrimSpace(stripped)
}
