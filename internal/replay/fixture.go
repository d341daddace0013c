package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aidoctor/go-pipeline/internal/drift"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a series
// of recorded extraction payloads to feed through drift detection, plus
// the flags each run is expected to raise.
type Fixture struct {
	Description     string                  `json:"description"`
	SeedWindow      []FixtureWindowEntry    `json:"seed_window"`
	Runs            []FixtureRun            `json:"runs"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureWindowEntry mirrors drift.WindowEntry with JSON tags. Seed
// entries stand in for runs that happened before the recording started.
type FixtureWindowEntry struct {
	SymptomCount int       `json:"symptom_count"`
	Features     []float64 `json:"features"`
}

// FixtureRun is one recorded pipeline run: the raw extraction payload as
// the model produced it, and the feature vector logged for that run.
type FixtureRun struct {
	RunID      string         `json:"run_id"`
	Extraction map[string]any `json:"extraction"`
	Features   []float64      `json:"features"`
}

// FixtureExpectedResult captures the expected detection outcome per run.
type FixtureExpectedResult struct {
	RunID    string   `json:"run_id"`
	HasDrift bool     `json:"has_drift"`
	Flags    []string `json:"flags"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToWindowEntry converts a FixtureWindowEntry to a domain WindowEntry.
func (e *FixtureWindowEntry) ToWindowEntry() drift.WindowEntry {
	return drift.WindowEntry{
		SymptomCount: e.SymptomCount,
		Features:     e.Features,
	}
}

// SeedEntries converts the fixture's seed window to domain entries.
func (f *Fixture) SeedEntries() []drift.WindowEntry {
	entries := make([]drift.WindowEntry, 0, len(f.SeedWindow))
	for i := range f.SeedWindow {
		entries = append(entries, f.SeedWindow[i].ToWindowEntry())
	}
	return entries
}

// #endregion fixture-loader
