package replay

import (
	"strings"
	"testing"

	"github.com/aidoctor/go-pipeline/internal/drift"
)

func payloadWithSymptoms(n int) map[string]any {
	symptoms := make([]any, n)
	for i := range symptoms {
		symptoms[i] = "s"
	}
	return map[string]any{
		"patient_info": map[string]any{"name": "Ana", "age": float64(30), "id": nil},
		"symptoms":     symptoms,
		"motive":       "checkup",
	}
}

func TestReplayAdvancesWindow(t *testing.T) {
	runs := []Run{
		{RunID: "r1", Extraction: payloadWithSymptoms(2)},
		{RunID: "r2", Extraction: payloadWithSymptoms(2)},
		{RunID: "r3", Extraction: payloadWithSymptoms(2)},
		{RunID: "r4", Extraction: payloadWithSymptoms(9)},
	}

	results := Replay(nil, runs)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	// Window grows one entry per run.
	for i, r := range results {
		if r.WindowLen != i {
			t.Fatalf("run %d: window len %d", i, r.WindowLen)
		}
	}

	for _, r := range results[:3] {
		if r.HasDrift {
			t.Fatalf("stable run %s flagged: %v", r.RunID, r.Flags)
		}
	}
	last := results[3]
	if !last.HasDrift {
		t.Fatal("expected spike to flag")
	}
	if !strings.HasPrefix(last.Flags[0], "symptom count anomaly") {
		t.Fatalf("unexpected flag: %v", last.Flags)
	}
	if last.Metrics.MeanCount != 2 {
		t.Fatalf("mean: got %f", last.Metrics.MeanCount)
	}
}

func TestReplaySeedWindowCounts(t *testing.T) {
	seed := []drift.WindowEntry{
		{SymptomCount: 1},
		{SymptomCount: 1},
	}
	results := Replay(seed, []Run{{RunID: "r1", Extraction: payloadWithSymptoms(6)}})
	if !results[0].HasDrift {
		t.Fatal("expected variance flag against seeded mean 1")
	}
	if results[0].WindowLen != 2 {
		t.Fatalf("window len: got %d", results[0].WindowLen)
	}
}

func TestReplayWindowCapped(t *testing.T) {
	runs := make([]Run, drift.WindowSize+3)
	for i := range runs {
		runs[i] = Run{RunID: "r", Extraction: payloadWithSymptoms(2)}
	}
	results := Replay(nil, runs)
	last := results[len(results)-1]
	if last.WindowLen != drift.WindowSize {
		t.Fatalf("window must cap at %d, got %d", drift.WindowSize, last.WindowLen)
	}
}

func TestReplaySimilarity(t *testing.T) {
	features := []float64{2, 20, 10, 12, 16, 0.3, 4, 2}
	runs := []Run{
		{RunID: "r1", Extraction: payloadWithSymptoms(2), Features: features},
		{RunID: "r2", Extraction: payloadWithSymptoms(2), Features: features},
		{RunID: "r3", Extraction: payloadWithSymptoms(2), Features: features},
		{RunID: "r4", Extraction: payloadWithSymptoms(2), Features: features},
	}

	results := Replay(nil, runs)
	// The first three runs have a cold window; similarity defaults to 1.
	for _, r := range results[:3] {
		if r.Metrics.Similarity != 1.0 {
			t.Fatalf("run %s: expected default similarity, got %f", r.RunID, r.Metrics.Similarity)
		}
	}
	// The fourth sees three identical feature vectors.
	if results[3].Metrics.Similarity < 0.999 {
		t.Fatalf("expected near-1 similarity, got %f", results[3].Metrics.Similarity)
	}
	if results[3].LowSimilarity {
		t.Fatal("identical features must not report low similarity")
	}
}

func TestSummarize(t *testing.T) {
	results := []RunResult{
		{RunID: "a", HasDrift: true},
		{RunID: "b"},
		{RunID: "c", LowSimilarity: true},
	}
	s := Summarize(results, nil)
	if s.TotalRuns != 3 || s.Flagged != 1 || s.LowSimilarity != 1 {
		t.Fatalf("unexpected summary: %+v", s)
	}
}

func TestVerifyMatchesOnPrefix(t *testing.T) {
	f, err := LoadFixture(writeFixtureFile(t, sampleFixture))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	results := Replay(f.SeedEntries(), f.ToRuns())
	mismatches := Verify(results, f.ExpectedResults)
	if len(mismatches) != 0 {
		t.Fatalf("expected clean verify, got %v", mismatches)
	}
}

func TestVerifyReportsMismatches(t *testing.T) {
	results := []RunResult{{RunID: "r1", HasDrift: false}}
	expected := []FixtureExpectedResult{
		{RunID: "r1", HasDrift: true, Flags: []string{"schema drift"}},
		{RunID: "missing", HasDrift: false},
	}

	mismatches := Verify(results, expected)
	if len(mismatches) != 3 {
		t.Fatalf("expected 3 mismatches, got %v", mismatches)
	}
}

func TestReplayBySubjectIsolatesWindows(t *testing.T) {
	// Subject A holds a stable count of 2; subject B holds a stable
	// count of 9. Interleaved through one shared window both final runs
	// would deviate from the mixed mean; per-subject windows flag
	// neither.
	groups := []SubjectRuns{
		{SubjectID: "P-A", Runs: []Run{
			{RunID: "a1", Extraction: payloadWithSymptoms(2)},
			{RunID: "a2", Extraction: payloadWithSymptoms(2)},
			{RunID: "a3", Extraction: payloadWithSymptoms(2)},
		}},
		{SubjectID: "P-B", Runs: []Run{
			{RunID: "b1", Extraction: payloadWithSymptoms(9)},
			{RunID: "b2", Extraction: payloadWithSymptoms(9)},
			{RunID: "b3", Extraction: payloadWithSymptoms(9)},
		}},
	}

	results := ReplayBySubject(groups)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	for _, r := range results {
		if r.HasDrift {
			t.Fatalf("run %s flagged against its own subject's window: %v", r.RunID, r.Flags)
		}
	}

	// Each group starts from an empty window.
	if results[0].RunID != "a1" || results[0].WindowLen != 0 {
		t.Fatalf("first result: %+v", results[0])
	}
	if results[3].RunID != "b1" || results[3].WindowLen != 0 {
		t.Fatalf("subject B should not inherit subject A's window: %+v", results[3])
	}

	// The same interleaved runs through one shared window do flag.
	var mixed []Run
	for i := 0; i < 3; i++ {
		mixed = append(mixed, groups[0].Runs[i], groups[1].Runs[i])
	}
	shared := Replay(nil, mixed)
	flagged := 0
	for _, r := range shared {
		if r.HasDrift {
			flagged++
		}
	}
	if flagged == 0 {
		t.Fatal("shared window should produce spurious flags for interleaved subjects")
	}
}
