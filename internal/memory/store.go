package memory

// #region imports
import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #endregion imports

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS memory_records (
	record_id     TEXT PRIMARY KEY,
	subject_id    TEXT NOT NULL,
	content       TEXT NOT NULL,
	content_type  TEXT NOT NULL,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memory_subject
ON memory_records(subject_id, created_at DESC);
`

// #endregion schema

// #region record

// Record is one persisted consultation entry. Records are append-only:
// created once, never mutated.
type Record struct {
	RecordID    string
	SubjectID   string
	Content     string
	ContentType string
	CreatedAt   time.Time
	Score       float64 // similarity to the query; set by Query only
}

// #endregion record

// #region store-struct

// Store manages per-subject memory records in SQLite. Isolation between
// subjects is enforced by the storage key (every read filters on
// subject_id), not by post-hoc filtering.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. the
// observability log shares the same database file).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion store-struct

// #region save

// Save appends a new record to the subject's namespace and returns its ID.
// Appends never overwrite: concurrent saves for one subject interleave
// without read-modify-write on existing rows.
func (s *Store) Save(subjectID, content, contentType string) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO memory_records (record_id, subject_id, content, content_type, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, subjectID, content, contentType, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("save record: %w", err)
	}
	return id, nil
}

// #endregion save

// #region query

// Query returns up to limit records from the subject's namespace ranked by
// lexical similarity to queryText. A subject with no history yields an
// empty result, never an error. Ranking is deterministic for a fixed store
// state: ties break newest-first, then by record ID.
func (s *Store) Query(subjectID, queryText string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 5
	}

	records, err := s.subjectRecords(subjectID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	queryTokens := tokenize(queryText)
	for i := range records {
		records[i].Score = similarity(queryTokens, tokenize(records[i].Content))
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].RecordID < records[j].RecordID
	})

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Recent returns up to n records for the subject, newest first.
func (s *Store) Recent(subjectID string, n int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT record_id, subject_id, content, content_type, created_at
		 FROM memory_records WHERE subject_id = ?
		 ORDER BY created_at DESC, record_id DESC LIMIT ?`,
		subjectID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *Store) subjectRecords(subjectID string) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT record_id, subject_id, content, content_type, created_at
		 FROM memory_records WHERE subject_id = ?`,
		subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("subject records: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var createdStr string
		if err := rows.Scan(&rec.RecordID, &rec.SubjectID, &rec.Content, &rec.ContentType, &createdStr); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion query

// #region stats

// SubjectStats summarizes one subject's history for inspection tooling.
type SubjectStats struct {
	SubjectID string
	Records   int
	LastVisit time.Time
}

// Stats returns record count and most recent timestamp for a subject.
func (s *Store) Stats(subjectID string) (SubjectStats, error) {
	st := SubjectStats{SubjectID: subjectID}
	var last sql.NullString
	err := s.db.QueryRow(
		`SELECT COUNT(*), MAX(created_at) FROM memory_records WHERE subject_id = ?`,
		subjectID,
	).Scan(&st.Records, &last)
	if err != nil {
		return SubjectStats{}, fmt.Errorf("subject stats: %w", err)
	}
	if last.Valid {
		st.LastVisit, _ = time.Parse(time.RFC3339Nano, last.String)
	}
	return st, nil
}

// Subjects lists distinct subject namespaces, most recently active first.
func (s *Store) Subjects(limit int) ([]SubjectStats, error) {
	rows, err := s.db.Query(
		`SELECT subject_id, COUNT(*), MAX(created_at)
		 FROM memory_records GROUP BY subject_id
		 ORDER BY MAX(created_at) DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	var out []SubjectStats
	for rows.Next() {
		var st SubjectStats
		var last string
		if err := rows.Scan(&st.SubjectID, &st.Records, &last); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		st.LastVisit, _ = time.Parse(time.RFC3339Nano, last)
		out = append(out, st)
	}
	return out, rows.Err()
}

// SymptomCount is one aggregated symptom tally for a subject.
type SymptomCount struct {
	Symptom string `json:"symptom"`
	Count   int    `json:"count"`
}

// CommonSymptoms tallies symptoms across a subject's consultation records
// and returns the topN most frequent. Symptoms are normalized to lowercase
// before counting; ties break alphabetically so repeated calls rank
// identically. Records whose content is not a consultation JSON document
// are skipped.
func (s *Store) CommonSymptoms(subjectID string, topN int) ([]SymptomCount, error) {
	records, err := s.subjectRecords(subjectID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, rec := range records {
		if rec.ContentType != "consultation" {
			continue
		}
		var doc struct {
			Symptoms []string `json:"symptoms"`
		}
		if err := json.Unmarshal([]byte(rec.Content), &doc); err != nil {
			continue
		}
		for _, sym := range doc.Symptoms {
			key := strings.ToLower(strings.TrimSpace(sym))
			if key == "" {
				continue
			}
			counts[key]++
		}
	}
	if len(counts) == 0 {
		return nil, nil
	}

	out := make([]SymptomCount, 0, len(counts))
	for sym, n := range counts {
		out = append(out, SymptomCount{Symptom: sym, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Symptom < out[j].Symptom
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

// #endregion stats
