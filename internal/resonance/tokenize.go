package resonance

import (
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "by": {}, "to": {}, "in": {}, "on": {},
	"for": {}, "and": {}, "or": {}, "with": {}, "from": {}, "over": {}, "into": {},
	"each": {}, "every": {}, "all": {}, "me": {}, "my": {}, "i": {}, "it": {},
	"its": {}, "is": {}, "are": {}, "be": {}, "that": {}, "this": {}, "what": {},
	"which": {}, "per": {}, "as": {}, "at": {}, "then": {}, "their": {}, "them": {},
	"so": {}, "we": {}, "our": {}, "some": {}, "any": {}, "between": {},
}

// Tokenize lowercases text, splits it on anything that is not a letter or
// digit, stems each word and drops stopwords. Order is preserved.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := stopwords[w]; stop {
			continue
		}
		if stem := Stem(w); stem != "" {
			tokens = append(tokens, stem)
		}
	}
	return tokens
}

// Stem strips one common English inflection. It is deliberately crude; the
// vocabulary lookup also tries the stem with a trailing "e".
func Stem(w string) string {
	switch {
	case len(w) > 5 && strings.HasSuffix(w, "ing"):
		return undouble(w[:len(w)-3])
	case len(w) > 4 && strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case len(w) > 4 && strings.HasSuffix(w, "ed"):
		return undouble(w[:len(w)-2])
	case len(w) > 3 && strings.HasSuffix(w, "s") &&
		!strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us") && !strings.HasSuffix(w, "is"):
		return w[:len(w)-1]
	default:
		return w
	}
}

func undouble(w string) string {
	n := len(w)
	if n < 3 || w[n-1] != w[n-2] {
		return w
	}
	switch w[n-1] {
	case 'l', 's', 'z', 'a', 'e', 'i', 'o', 'u':
		return w
	}
	return w[:n-1]
}

// splitName breaks an identifier such as "groupByTime" or "sum_count" into
// lowercase parts.
func splitName(name string) []string {
	var parts []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			parts = append(parts, strings.ToLower(string(current)))
			current = current[:0]
		}
	}
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	return parts
}
