package drift

// #region imports
import (
	"fmt"
	"math"
	"strings"

	"github.com/aidoctor/go-pipeline/internal/schema"
)

// #endregion imports

// #region config

const (
	// WindowSize bounds the comparison window: only the most recent N prior
	// results feed the variance check, keeping per-run storage cost O(1).
	WindowSize = 10

	// CountVarianceThreshold flags a run whose symptom count deviates from
	// the window mean by more than this many symptoms.
	CountVarianceThreshold = 3

	// similarityFloor marks the content-similarity metric as low. The
	// metric is informational: it never flips HasDrift on its own.
	similarityFloor = 0.8

	// minSimilarityWindow is how many feature-bearing prior results are
	// needed before the similarity metric is meaningful.
	minSimilarityWindow = 3
)

// #endregion config

// #region types

// WindowEntry is one prior result in the comparison window.
type WindowEntry struct {
	SymptomCount int
	Features     []float64
}

// Metrics carries the numeric signals behind a detection pass.
type Metrics struct {
	SymptomCount int
	MeanCount    float64
	Similarity   float64 // 1.0 when the window is too small to compare
}

// Result is the outcome of one detection pass.
type Result struct {
	HasDrift bool
	Flags    []string
	Metrics  Metrics
}

// #endregion types

// #region detect

// Detect runs the two drift checks against the current extraction output
// and unions their flags:
//
//  1. schema re-validation of current (failure carries the validator's
//     full error list)
//  2. symptom-count variance against the window mean
//
// Pure and deterministic: identical (current, window) pairs always produce
// identical results.
func Detect(current map[string]any, window []WindowEntry) Result {
	res := Result{Metrics: Metrics{Similarity: 1.0}}

	// Check 1: schema re-validation
	v := schema.Validate(schema.KindExtraction, current)
	if !v.Valid {
		res.HasDrift = true
		res.Flags = append(res.Flags, "schema drift: "+strings.Join(v.Errors, "; "))
	}

	// Check 2: symptom-count variance
	count := symptomCount(current)
	res.Metrics.SymptomCount = count
	if len(window) > 0 {
		var sum int
		for _, e := range window {
			sum += e.SymptomCount
		}
		mean := float64(sum) / float64(len(window))
		res.Metrics.MeanCount = mean
		if math.Abs(float64(count)-mean) > CountVarianceThreshold {
			res.HasDrift = true
			res.Flags = append(res.Flags, fmt.Sprintf(
				"symptom count anomaly: count %d deviates from window mean %.1f by more than %d",
				count, mean, CountVarianceThreshold))
		}
	}

	return res
}

func symptomCount(data map[string]any) int {
	list, ok := data["symptoms"].([]any)
	if !ok {
		return 0
	}
	return len(list)
}

// #endregion detect

// #region features

// Features projects a run's outputs into the numeric vector used for the
// content-similarity metric: symptom count, text lengths, normalized age,
// and word counts.
func Features(ex schema.Extraction, d schema.Diagnosis) []float64 {
	return []float64{
		float64(len(ex.Symptoms)),
		float64(len(ex.Motive)),
		float64(len(d.Diagnosis)),
		float64(len(d.Treatment)),
		float64(len(d.Recommendations)),
		float64(ex.PatientInfo.Age) / 100.0,
		float64(len(strings.Fields(ex.Motive))),
		float64(len(strings.Fields(d.Diagnosis))),
	}
}

// Similarity averages the cosine similarity between the current run's
// feature vector and each feature-bearing window entry. Returns ok=false
// when fewer than three prior entries carry comparable features — the
// metric is meaningless on a cold window.
func Similarity(cur []float64, window []WindowEntry) (float64, bool) {
	var sims []float64
	for _, e := range window {
		if len(e.Features) != len(cur) {
			continue
		}
		sims = append(sims, cosine(cur, e.Features))
	}
	if len(sims) < minSimilarityWindow {
		return 0, false
	}

	var sum float64
	for _, s := range sims {
		sum += s
	}
	return sum / float64(len(sims)), true
}

func cosine(a, b []float64) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// LowSimilarity reports whether a similarity metric is below the
// informational floor.
func LowSimilarity(sim float64) bool {
	return sim < similarityFloor
}

// #endregion features
