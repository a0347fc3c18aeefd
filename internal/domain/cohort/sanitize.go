package cohort

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const digitPrefix = "x_"

var columnPunct = strings.NewReplacer(
	" ", "_",
	"/", "_",
	"-", "_",
	".", "_",
	"(", "",
	")", "",
	"+", "_",
)

// digitForms are the non-decimal characters that still count as digits for
// the leading-digit rule: superscript, subscript, circled and similar forms.
var digitForms = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x00b2, Hi: 0x00b3, Stride: 1},
		{Lo: 0x00b9, Hi: 0x00b9, Stride: 1},
		{Lo: 0x1369, Hi: 0x1371, Stride: 1},
		{Lo: 0x2070, Hi: 0x2070, Stride: 1},
		{Lo: 0x2074, Hi: 0x2079, Stride: 1},
		{Lo: 0x2080, Hi: 0x2089, Stride: 1},
		{Lo: 0x2460, Hi: 0x2468, Stride: 1},
		{Lo: 0x2474, Hi: 0x247c, Stride: 1},
		{Lo: 0x2488, Hi: 0x2490, Stride: 1},
		{Lo: 0x24ea, Hi: 0x24ea, Stride: 1},
		{Lo: 0x24f5, Hi: 0x24fd, Stride: 1},
		{Lo: 0x24ff, Hi: 0x24ff, Stride: 1},
		{Lo: 0x2776, Hi: 0x277e, Stride: 1},
		{Lo: 0x2780, Hi: 0x2788, Stride: 1},
		{Lo: 0x278a, Hi: 0x2792, Stride: 1},
	},
	LatinOffset: 2,
}

func isDigit(r rune) bool { return unicode.IsDigit(r) || unicode.Is(digitForms, r) }

// SanitizeColumnName derives a column-name fragment from a vocabulary
// identifier. Distinct identifiers may map to the same name ("H40.1" and
// "H40-1"); the schema builder keeps the first.
func SanitizeColumnName(name string) string {
	s := columnPunct.Replace(strings.ToLower(name))
	s = strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) {
			return r
		}
		return -1
	}, s)
	if r, _ := utf8.DecodeRuneInString(s); s != "" && isDigit(r) {
		s = digitPrefix + s
	}
	return s
}
