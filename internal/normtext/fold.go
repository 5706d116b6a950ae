package normtext

import "strings"

// turkishFoldTable maps diacritic runes (lower and upper case) to their
// ASCII equivalents, so both the folded and original forms can be indexed.
var turkishFoldTable = map[rune]rune{
	'ç': 'c', 'Ç': 'C',
	'ğ': 'g', 'Ğ': 'G',
	'ı': 'i', 'İ': 'I',
	'ö': 'o', 'Ö': 'O',
	'ş': 's', 'Ş': 'S',
	'ü': 'u', 'Ü': 'U',
}

// foldASCII maps known diacritics to their ASCII equivalents, leaving every
// other rune untouched.
func foldASCII(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if folded, ok := turkishFoldTable[r]; ok {
			b.WriteRune(folded)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// looksTurkish guesses "tr" if text contains a Turkish-specific diacritic or
// a handful of very common Turkish function words; "en" otherwise. This is
// a heuristic, not a real language classifier.
func looksTurkish(text string) bool {
	for _, r := range text {
		if _, ok := turkishFoldTable[r]; ok {
			return true
		}
	}
	lower := strings.ToLower(text)
	for _, marker := range []string{" bir ", " ve ", " için ", " değil", "mıydı", "miydi"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
