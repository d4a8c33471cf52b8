package knowledge

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

// tokenize lower-cases s after NFC normalisation so "café" typed with a
// combining accent matches the precomposed form.
func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(norm.NFC.String(s))
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

// jaccard is |a ∩ b| / |a ∪ b|, zero when either side is empty.
func jaccard(a, b map[string]struct{}) float64 {
	over := overlap(a, b)
	if over == 0 {
		return 0
	}
	union := len(a) + len(b) - over
	return float64(over) / float64(union)
}
