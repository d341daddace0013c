package obslog

import "time"

// #region entry
// Entry is a single row in the observability_log table: one record per
// pipeline run, appended after completion (or failure), never updated.
type Entry struct {
	RequestID     string
	SubjectID     string
	InputType     string // "text" | "audio"
	ModelName     string
	PromptVersion string // composite "extract_v2,diagnosis_v3"
	LatencyMS     int64
	SymptomCount  int
	ExtractOK     bool
	DiagnoseOK    bool
	DriftFlags    []string
	Features      []float64 // numeric feature vector for drift similarity
	Success       bool
	ErrorMsg      string
	CreatedAt     time.Time
}

// #endregion entry
