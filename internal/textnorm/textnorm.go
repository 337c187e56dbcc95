// Package textnorm holds the text normalisation shared by the extractor and matcher.
package textnorm

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"le": {}, "la": {}, "les": {}, "un": {}, "une": {}, "des": {}, "du": {}, "de": {},
	"et": {}, "ou": {}, "pour": {}, "dans": {},
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "for": {}, "in": {}, "at": {},
	"to": {}, "of": {}, "with": {},
}

// Fold lowercases s and strips combining marks, so "Développeur" becomes "developpeur".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}

// AlphaNum folds s and keeps only letters and digits.
func AlphaNum(s string) string {
	var b strings.Builder
	for _, r := range Fold(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Title capitalises the first letter of every word and lowercases the rest.
func Title(s string) string {
	return cases.Title(language.Und).String(strings.ToLower(strings.TrimSpace(s)))
}

// Keywords returns the distinct folded words of s with at least minLen letters,
// stop words removed, in order of first appearance.
func Keywords(s string, minLen int) []string {
	words := strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := make(map[string]struct{}, len(words))
	var out []string
	for _, w := range words {
		if len([]rune(w)) < minLen {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func IsStopWord(w string) bool {
	_, ok := stopWords[Fold(w)]
	return ok
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Round2 rounds a confidence score to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
