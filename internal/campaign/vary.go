package campaign

import (
	"math/rand/v2"
	"strings"
)

//nolint:gochecknoglobals // fixed separator set
var separators = []string{"🙂", "✨", "👋", "💬", "·", "~", "!", "*", "_", "#"}

// Vary inserts between one and three visible separators at random rune
// boundaries of text. Characters of text are never removed or reordered, so
// text is always a subsequence of the result.
func Vary(r *rand.Rand, text string) string {
	runes := []rune(text)
	n := 1 + r.IntN(3)

	// Insertion points are indexes into runes; several may coincide.
	points := make([]int, n)
	for i := range points {
		points[i] = r.IntN(len(runes) + 1)
	}

	var b strings.Builder
	b.Grow(len(text) + n*4)
	for i := 0; i <= len(runes); i++ {
		for _, p := range points {
			if p == i {
				b.WriteString(separators[r.IntN(len(separators))])
			}
		}
		if i < len(runes) {
			b.WriteRune(runes[i])
		}
	}
	return b.String()
}
