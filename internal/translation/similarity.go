// internal/translation/similarity.go
package translation

import (
	"strings"
	"unicode"
)

// Similarity is the Dice coefficient over character bigrams of a and b,
// ignoring whitespace and case. It ranges from 0 to 1.
func Similarity(a, b string) float64 {
	ra, rb := normalize(a), normalize(b)
	if string(ra) == string(rb) {
		return 1
	}
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	bigrams := make(map[[2]rune]int, len(ra)-1)
	for i := 0; i < len(ra)-1; i++ {
		bigrams[[2]rune{ra[i], ra[i+1]}]++
	}

	shared := 0
	for i := 0; i < len(rb)-1; i++ {
		k := [2]rune{rb[i], rb[i+1]}
		if bigrams[k] > 0 {
			bigrams[k]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ra)+len(rb)-2)
}

func normalize(s string) []rune {
	return []rune(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s))
}
