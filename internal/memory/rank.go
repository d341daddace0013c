package memory

// #region imports
import (
	"math"
	"strings"
	"unicode"
)

// #endregion imports

// #region stopwords
// stopwords contains common words excluded from similarity scoring, in both
// the service languages (Spanish input, English record formatting).
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "and": true, "or": true, "but": true,
	"of": true, "on": true, "to": true, "with": true, "for": true,
	"in": true, "at": true, "by": true, "from": true, "it": true,
	"this": true, "that": true, "previous": true, "consultation": true,
	"symptoms": true, "diagnosis": true,
	"el": true, "la": true, "los": true, "las": true, "un": true,
	"una": true, "de": true, "del": true, "en": true, "con": true,
	"por": true, "para": true, "que": true, "es": true, "se": true,
	"su": true, "mi": true, "le": true, "lo": true,
}

// tokenize splits text into lowercase non-stopword token counts.
func tokenize(text string) map[string]int {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	counts := make(map[string]int)
	for _, w := range words {
		if len(w) < 2 || stopwords[w] {
			continue
		}
		counts[w]++
	}
	return counts
}

// #endregion stopwords

// #region similarity

// similarity computes cosine similarity between two token-count vectors.
// Pure and deterministic: the same pair always scores the same.
func similarity(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for w, va := range a {
		magA += float64(va) * float64(va)
		if vb, ok := b[w]; ok {
			dot += float64(va) * float64(vb)
		}
	}
	for _, vb := range b {
		magB += float64(vb) * float64(vb)
	}

	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// #endregion similarity
