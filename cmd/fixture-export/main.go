package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/aidoctor/go-pipeline/internal/memory"
	"github.com/aidoctor/go-pipeline/internal/obslog"
	"github.com/aidoctor/go-pipeline/internal/replay"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to doctor.db")
	subject := flag.String("subject", "", "subject to export (default all)")
	last := flag.Int("last", 10, "number of most recent runs to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --out path/to/fixture.json [--subject id] [--last N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *subject, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, subject string, last int, outPath string) error {
	store, err := memory.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	if err := obslog.Init(store.DB()); err != nil {
		return fmt.Errorf("init run log: %w", err)
	}

	var entries []obslog.Entry
	if subject != "" {
		entries, err = obslog.RecentRuns(store.DB(), subject, last)
	} else {
		entries, err = obslog.ListRuns(store.DB(), last)
	}
	if err != nil {
		return fmt.Errorf("load runs: %w", err)
	}

	// Keep only runs with a usable extraction, oldest first.
	var usable []obslog.Entry
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Success && entries[i].ExtractOK {
			usable = append(usable, entries[i])
		}
	}
	if len(usable) == 0 {
		return fmt.Errorf("no exportable runs in last %d entries", last)
	}

	fmt.Printf("Found %d exportable runs\n", len(usable))

	fixture := buildFixture(usable)
	return writeFixture(fixture, outPath)
}

// #endregion extract

// #region output

func buildFixture(entries []obslog.Entry) replay.Fixture {
	runs := make([]replay.FixtureRun, len(entries))
	expected := make([]replay.FixtureExpectedResult, len(entries))

	for i, e := range entries {
		runs[i] = replay.FixtureRun{
			RunID:      e.RequestID,
			Extraction: rebuildPayload(e.SymptomCount),
			Features:   e.Features,
		}
		expected[i] = replay.FixtureExpectedResult{
			RunID:    e.RequestID,
			HasDrift: len(e.DriftFlags) > 0,
			Flags:    e.DriftFlags,
		}
	}

	return replay.Fixture{
		Description:     fmt.Sprintf("Real session export: %d runs from production DB", len(entries)),
		Runs:            runs,
		ExpectedResults: expected,
	}
}

// rebuildPayload reconstructs the minimum valid extraction shape from a
// logged symptom count. The run log keeps no medical content.
func rebuildPayload(symptomCount int) map[string]any {
	symptoms := make([]any, symptomCount)
	for i := range symptoms {
		symptoms[i] = "recorded"
	}
	return map[string]any{
		"patient_info": map[string]any{"name": "recorded", "age": 0, "id": nil},
		"symptoms":     symptoms,
		"motive":       "recorded",
	}
}

func writeFixture(fixture replay.Fixture, outPath string) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("Wrote fixture to %s (%d bytes, %d runs)\n", outPath, len(data), len(fixture.Runs))
	return nil
}

// #endregion output
