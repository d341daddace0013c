package replay

import (
	"github.com/aidoctor/go-pipeline/internal/drift"
)

// #region types

// Run is a single recorded pipeline run to feed through drift detection.
type Run struct {
	RunID      string
	Extraction map[string]any
	Features   []float64
}

// RunResult captures the detection outcome for one replayed run.
type RunResult struct {
	RunID         string
	HasDrift      bool
	Flags         []string
	Metrics       drift.Metrics
	WindowLen     int
	LowSimilarity bool
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalRuns     int
	Flagged       int
	LowSimilarity int
	FinalWindow   []drift.WindowEntry
}

// #endregion types

// #region replay

// Replay feeds recorded runs through drift detection in order, advancing
// the comparison window after each run exactly as the live pipeline
// would. Operates entirely in-memory.
func Replay(seed []drift.WindowEntry, runs []Run) []RunResult {
	window := append([]drift.WindowEntry(nil), seed...)
	results := make([]RunResult, 0, len(runs))

	for _, run := range runs {
		res := drift.Detect(run.Extraction, window)
		if sim, ok := drift.Similarity(run.Features, window); ok {
			res.Metrics.Similarity = sim
		}

		results = append(results, RunResult{
			RunID:         run.RunID,
			HasDrift:      res.HasDrift,
			Flags:         res.Flags,
			Metrics:       res.Metrics,
			WindowLen:     len(window),
			LowSimilarity: drift.LowSimilarity(res.Metrics.Similarity),
		})

		window = append(window, drift.WindowEntry{
			SymptomCount: res.Metrics.SymptomCount,
			Features:     run.Features,
		})
		if len(window) > drift.WindowSize {
			window = window[len(window)-drift.WindowSize:]
		}
	}

	return results
}

// SubjectRuns is one subject's recorded runs in chronological order.
type SubjectRuns struct {
	SubjectID string
	Runs      []Run
}

// ReplayBySubject replays each subject's runs against its own rolling
// window, mirroring how the live pipeline scopes the window per subject.
// Results come back in group order, chronological within each group.
func ReplayBySubject(groups []SubjectRuns) []RunResult {
	var results []RunResult
	for _, g := range groups {
		results = append(results, Replay(nil, g.Runs)...)
	}
	return results
}

// ToRuns converts fixture runs to domain runs.
func (f *Fixture) ToRuns() []Run {
	runs := make([]Run, 0, len(f.Runs))
	for _, r := range f.Runs {
		runs = append(runs, Run{
			RunID:      r.RunID,
			Extraction: r.Extraction,
			Features:   r.Features,
		})
	}
	return runs
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []RunResult, finalWindow []drift.WindowEntry) Summary {
	s := Summary{
		TotalRuns:   len(results),
		FinalWindow: finalWindow,
	}
	for _, r := range results {
		if r.HasDrift {
			s.Flagged++
		}
		if r.LowSimilarity {
			s.LowSimilarity++
		}
	}
	return s
}

// #endregion replay

// #region verify

// Mismatch describes a divergence between a replayed run and its
// expected result.
type Mismatch struct {
	RunID    string
	Field    string
	Expected string
	Actual   string
}

// Verify compares replay results against the fixture's expectations.
// Expected flags match on prefix so fixtures don't have to reproduce
// the full validator error text.
func Verify(results []RunResult, expected []FixtureExpectedResult) []Mismatch {
	byID := make(map[string]RunResult, len(results))
	for _, r := range results {
		byID[r.RunID] = r
	}

	var mismatches []Mismatch
	for _, exp := range expected {
		res, ok := byID[exp.RunID]
		if !ok {
			mismatches = append(mismatches, Mismatch{
				RunID:    exp.RunID,
				Field:    "run",
				Expected: "present",
				Actual:   "missing",
			})
			continue
		}
		if res.HasDrift != exp.HasDrift {
			mismatches = append(mismatches, Mismatch{
				RunID:    exp.RunID,
				Field:    "has_drift",
				Expected: boolStr(exp.HasDrift),
				Actual:   boolStr(res.HasDrift),
			})
		}
		for _, want := range exp.Flags {
			if !hasFlagPrefix(res.Flags, want) {
				mismatches = append(mismatches, Mismatch{
					RunID:    exp.RunID,
					Field:    "flags",
					Expected: want,
					Actual:   "absent",
				})
			}
		}
	}
	return mismatches
}

func hasFlagPrefix(flags []string, prefix string) bool {
	for _, f := range flags {
		if len(f) >= len(prefix) && f[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// #endregion verify
