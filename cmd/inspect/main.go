package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/aidoctor/go-pipeline/internal/memory"
	"github.com/aidoctor/go-pipeline/internal/obslog"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to doctor.db")
	last := flag.Int("last", 20, "show N most recent runs")
	subject := flag.String("subject", "", "show single subject detail")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/doctor.db [--last N] [--subject id] [--json]")
		os.Exit(2)
	}

	store, err := memory.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := obslog.Init(store.DB()); err != nil {
		fmt.Fprintf(os.Stderr, "init run log: %v\n", err)
		os.Exit(1)
	}

	if *subject != "" {
		if err := runSubjectMode(store, *subject, *last, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		if err := runListMode(store, *last, *jsonOut); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

// #endregion main

// #region list-mode

type runRow struct {
	RequestID    string   `json:"request_id"`
	SubjectID    string   `json:"subject_id,omitempty"`
	InputType    string   `json:"input_type"`
	ModelName    string   `json:"model_name"`
	LatencyMS    int64    `json:"latency_ms"`
	SymptomCount int      `json:"symptom_count"`
	ExtractOK    bool     `json:"extract_ok"`
	DiagnoseOK   bool     `json:"diagnose_ok"`
	DriftFlags   []string `json:"drift_flags,omitempty"`
	Success      bool     `json:"success"`
	ErrorMsg     string   `json:"error_msg,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

func runListMode(store *memory.Store, last int, jsonOut bool) error {
	entries, err := obslog.ListRuns(store.DB(), last)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}

	// ListRuns returns DESC, reverse for chronological order
	rows := make([]runRow, len(entries))
	for i, e := range entries {
		rows[len(entries)-1-i] = toRow(e)
	}

	if jsonOut {
		return printJSON(rows)
	}
	printRunTable(rows)
	return nil
}

func toRow(e obslog.Entry) runRow {
	return runRow{
		RequestID:    e.RequestID,
		SubjectID:    e.SubjectID,
		InputType:    e.InputType,
		ModelName:    e.ModelName,
		LatencyMS:    e.LatencyMS,
		SymptomCount: e.SymptomCount,
		ExtractOK:    e.ExtractOK,
		DiagnoseOK:   e.DiagnoseOK,
		DriftFlags:   e.DriftFlags,
		Success:      e.Success,
		ErrorMsg:     e.ErrorMsg,
		CreatedAt:    e.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func printRunTable(rows []runRow) {
	fmt.Printf("%-12s  %-18s  %-6s  %8s  %5s  %-7s  %-5s  %s\n",
		"Request", "Subject", "Input", "Latency", "Sympt", "Status", "Drift", "Time")
	fmt.Printf("%-12s+-%-18s+-%-6s+-%8s+-%5s+-%-7s+-%-5s+-%s\n",
		"------------", "------------------", "------", "--------", "-----", "-------", "-----", "--------------------")

	for _, r := range rows {
		fmt.Printf("%-12s  %-18s  %-6s  %6dms  %5d  %-7s  %-5s  %s\n",
			shortID(r.RequestID), valueOr(r.SubjectID, "—"), r.InputType,
			r.LatencyMS, r.SymptomCount, statusStr(r), driftStr(r.DriftFlags), r.CreatedAt)
	}

	latest := rows[len(rows)-1]
	if len(latest.DriftFlags) > 0 {
		fmt.Printf("\nDrift flags (latest run):\n")
		for _, f := range latest.DriftFlags {
			fmt.Printf("  %s\n", f)
		}
	}
}

func statusStr(r runRow) string {
	if !r.Success {
		return "failed"
	}
	if !r.ExtractOK || !r.DiagnoseOK {
		return "degrade"
	}
	return "ok"
}

func driftStr(flags []string) string {
	if len(flags) == 0 {
		return "—"
	}
	return fmt.Sprintf("%d", len(flags))
}

// #endregion list-mode

// #region subject-mode

type subjectOutput struct {
	SubjectID      string                `json:"subject_id"`
	Records        int                   `json:"records"`
	LastVisit      string                `json:"last_visit,omitempty"`
	CommonSymptoms []memory.SymptomCount `json:"common_symptoms,omitempty"`
	Runs           []runRow              `json:"runs"`
}

func runSubjectMode(store *memory.Store, subjectID string, last int, jsonOut bool) error {
	stats, err := store.Stats(subjectID)
	if err != nil {
		return err
	}

	symptoms, err := store.CommonSymptoms(subjectID, 5)
	if err != nil {
		return err
	}

	entries, err := obslog.RecentRuns(store.DB(), subjectID, last)
	if err != nil {
		return err
	}

	out := subjectOutput{
		SubjectID:      subjectID,
		Records:        stats.Records,
		CommonSymptoms: symptoms,
	}
	if !stats.LastVisit.IsZero() {
		out.LastVisit = stats.LastVisit.Format("2006-01-02T15:04:05Z")
	}
	for i := len(entries) - 1; i >= 0; i-- {
		out.Runs = append(out.Runs, toRow(entries[i]))
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Subject:    %s\n", out.SubjectID)
	fmt.Printf("Records:    %d\n", out.Records)
	fmt.Printf("Last visit: %s\n", valueOr(out.LastVisit, "—"))
	if len(out.CommonSymptoms) > 0 {
		parts := make([]string, len(out.CommonSymptoms))
		for i, sc := range out.CommonSymptoms {
			parts[i] = fmt.Sprintf("%s (%d)", sc.Symptom, sc.Count)
		}
		fmt.Printf("Symptoms:   %s\n", strings.Join(parts, ", "))
	}

	if len(out.Runs) > 0 {
		fmt.Println()
		printRunTable(out.Runs)
	}
	return nil
}

// #endregion subject-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// #endregion output
