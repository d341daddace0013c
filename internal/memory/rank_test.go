package memory

import (
	"math"
	"testing"
)

func TestTokenizeDropsStopwordsAndShortWords(t *testing.T) {
	counts := tokenize("Previous consultation: el paciente presenta fiebre y tos")
	if counts["previous"] != 0 || counts["consultation"] != 0 || counts["el"] != 0 {
		t.Fatalf("stopwords leaked: %v", counts)
	}
	if counts["y"] != 0 {
		t.Fatalf("single-letter token leaked: %v", counts)
	}
	if counts["fiebre"] != 1 || counts["tos"] != 1 || counts["paciente"] != 1 {
		t.Fatalf("expected content tokens, got %v", counts)
	}
}

func TestTokenizeCountsRepeats(t *testing.T) {
	counts := tokenize("fever, fever and more fever")
	if counts["fever"] != 3 {
		t.Fatalf("expected 3 fevers, got %v", counts)
	}
}

func TestSimilarityBounds(t *testing.T) {
	a := tokenize("fever cough headache")
	if got := similarity(a, a); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("self-similarity: got %f", got)
	}
	b := tokenize("sprained ankle")
	if got := similarity(a, b); got != 0 {
		t.Fatalf("disjoint vectors: got %f", got)
	}
	if got := similarity(a, map[string]int{}); got != 0 {
		t.Fatalf("empty vector: got %f", got)
	}
}

func TestSimilaritySymmetric(t *testing.T) {
	a := tokenize("persistent fever with dry cough")
	b := tokenize("fever and fatigue")
	if x, y := similarity(a, b), similarity(b, a); math.Abs(x-y) > 1e-9 {
		t.Fatalf("asymmetric: %f vs %f", x, y)
	}
}
