package obslog

// #region imports
import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// #endregion imports

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS observability_log (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id     TEXT NOT NULL,
	subject_id     TEXT NOT NULL,
	input_type     TEXT NOT NULL,
	model_name     TEXT NOT NULL,
	prompt_version TEXT NOT NULL,
	latency_ms     INTEGER NOT NULL,
	symptom_count  INTEGER NOT NULL,
	extract_ok     INTEGER NOT NULL,
	diagnose_ok    INTEGER NOT NULL,
	drift_flags    TEXT,
	features_json  TEXT,
	success        INTEGER NOT NULL,
	error_msg      TEXT,
	created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_obslog_subject
ON observability_log(subject_id, created_at DESC);
`

// Init creates the observability_log table if needed.
func Init(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate obslog: %w", err)
	}
	return nil
}

// #endregion schema

// #region log-run

// LogRun appends one entry. Failures here must never affect the run's
// response; callers log and move on.
func LogRun(db *sql.DB, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var flagsJSON any
	if len(entry.DriftFlags) > 0 {
		b, err := json.Marshal(entry.DriftFlags)
		if err != nil {
			return fmt.Errorf("marshal drift flags: %w", err)
		}
		flagsJSON = string(b)
	}

	var featuresJSON any
	if len(entry.Features) > 0 {
		b, err := json.Marshal(entry.Features)
		if err != nil {
			return fmt.Errorf("marshal features: %w", err)
		}
		featuresJSON = string(b)
	}

	_, err := db.Exec(
		`INSERT INTO observability_log
		 (request_id, subject_id, input_type, model_name, prompt_version,
		  latency_ms, symptom_count, extract_ok, diagnose_ok, drift_flags,
		  features_json, success, error_msg, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID,
		entry.SubjectID,
		entry.InputType,
		entry.ModelName,
		entry.PromptVersion,
		entry.LatencyMS,
		entry.SymptomCount,
		boolInt(entry.ExtractOK),
		boolInt(entry.DiagnoseOK),
		flagsJSON,
		featuresJSON,
		boolInt(entry.Success),
		nullIfEmpty(entry.ErrorMsg),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log run: %w", err)
	}
	return nil
}

// #endregion log-run

// #region queries

// RecentRuns returns up to n entries for a subject, newest first. This is
// the drift detector's comparison window.
func RecentRuns(db *sql.DB, subjectID string, n int) ([]Entry, error) {
	return queryEntries(db,
		`SELECT request_id, subject_id, input_type, model_name, prompt_version,
		        latency_ms, symptom_count, extract_ok, diagnose_ok, drift_flags,
		        features_json, success, error_msg, created_at
		 FROM observability_log WHERE subject_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		subjectID, n)
}

// ListRuns returns the n most recent entries across all subjects.
func ListRuns(db *sql.DB, n int) ([]Entry, error) {
	return queryEntries(db,
		`SELECT request_id, subject_id, input_type, model_name, prompt_version,
		        latency_ms, symptom_count, extract_ok, diagnose_ok, drift_flags,
		        features_json, success, error_msg, created_at
		 FROM observability_log
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		n)
}

func queryEntries(db *sql.DB, query string, args ...any) ([]Entry, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query obslog: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var extractOK, diagnoseOK, success int
		var flags, featuresStr, errMsg sql.NullString
		var createdStr string
		if err := rows.Scan(
			&e.RequestID, &e.SubjectID, &e.InputType, &e.ModelName, &e.PromptVersion,
			&e.LatencyMS, &e.SymptomCount, &extractOK, &diagnoseOK, &flags,
			&featuresStr, &success, &errMsg, &createdStr,
		); err != nil {
			return nil, fmt.Errorf("scan obslog row: %w", err)
		}
		e.ExtractOK = extractOK != 0
		e.DiagnoseOK = diagnoseOK != 0
		e.Success = success != 0
		if flags.Valid {
			_ = json.Unmarshal([]byte(flags.String), &e.DriftFlags)
		}
		if featuresStr.Valid {
			_ = json.Unmarshal([]byte(featuresStr.String), &e.Features)
		}
		if errMsg.Valid {
			e.ErrorMsg = errMsg.String
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion queries

// #region helpers
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
