package pipeline

// #region imports
import (
	"fmt"
	"strings"
	"time"

	"github.com/aidoctor/go-pipeline/internal/drift"
	"github.com/aidoctor/go-pipeline/internal/schema"
)

// #endregion imports

// #region request

// Request is the normalized inbound request delivered by the transport
// layer. Exactly one of Text or AudioRef must be set.
type Request struct {
	Text      string
	AudioRef  string // path to an uploaded audio file; deleted after use
	SubjectID string
	Language  string
	Backend   string // chat backend name; empty = configured default
}

// Message is one role-tagged entry in a run's transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// #endregion request

// #region step-errors

// ErrorKind classifies why a step degraded.
type ErrorKind string

const (
	ErrProvider   ErrorKind = "provider"
	ErrParse      ErrorKind = "parse"
	ErrValidation ErrorKind = "validation"
	ErrStore      ErrorKind = "store"
	ErrConfig     ErrorKind = "config"
)

// StepError records why one step produced a degraded result. It never
// propagates past the step boundary; the engine stores it on the run state
// so tests and logs can assert on the degraded branch deterministically.
type StepError struct {
	Kind       ErrorKind
	Msg        string
	Violations []string // populated for ErrValidation
}

func (e *StepError) Error() string {
	if len(e.Violations) > 0 {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Msg, strings.Join(e.Violations, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// StepStatus is the per-step outcome recorded on the run state.
type StepStatus struct {
	Step string
	OK   bool
	Err  *StepError // nil when OK
}

// TopLevelError is a failure before the first pipeline step begins. It is
// the only error surfaced to the caller; its Error string is the generic
// user-facing message, with the cause kept for logs.
type TopLevelError struct {
	Cause error
}

func (e *TopLevelError) Error() string {
	return "processing failed, please try again"
}

func (e *TopLevelError) Unwrap() error {
	return e.Cause
}

// #endregion step-errors

// #region run-state

// RunState is the unit of work threaded through the pipeline. Created
// fresh per request, exclusively owned by one run, discarded after the
// response is emitted.
type RunState struct {
	RequestID string
	InputType string // "text" | "audio"
	SubjectID string // empty = anonymous, no persistence side effects
	Backend   string
	Messages  []Message

	// extract step output. Extracted holds the raw parsed object, fully
	// replaced (never merged) on success; on failure it is the degraded
	// marker {"error": ..., "validation_errors": [...]}.
	Extracted   map[string]any
	Extraction  schema.Extraction
	ExtractErr  *StepError

	// get_context step output.
	Context    string
	ContextErr *StepError

	// diagnose step output; same degrade shape as extract.
	DiagnosisRaw map[string]any
	Diagnosis    schema.Diagnosis
	DiagnoseErr  *StepError

	// detect_drift step output.
	DriftFlags   []string
	DriftMetrics drift.Metrics
	Features     []float64

	// persist step outcome.
	PersistErr *StepError

	Steps     []StepStatus
	StartedAt time.Time
}

func (st *RunState) lastMessage() string {
	if len(st.Messages) == 0 {
		return ""
	}
	return st.Messages[len(st.Messages)-1].Content
}

func (st *RunState) record(step string, err *StepError) {
	st.Steps = append(st.Steps, StepStatus{Step: step, OK: err == nil, Err: err})
}

// #endregion run-state

// #region result

// Metadata is the run-level provenance block attached to every result.
type Metadata struct {
	RequestID     string   `json:"request_id"`
	SubjectID     string   `json:"subject_id,omitempty"`
	InputType     string   `json:"input_type"`
	ModelName     string   `json:"model_name"`
	PromptVersion string   `json:"prompt_version"`
	LatencyMS     int64    `json:"latency_ms"`
	Timestamp     string   `json:"timestamp"`
	DriftDetected bool     `json:"drift_detected"`
	DriftFlags    []string `json:"drift_flags,omitempty"`
}

// Result is the RunState projection returned to the caller. A degraded run
// still carries Success=true with the error markers set; Success=false is
// reserved for total inability to construct a run.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	PatientInfo     schema.PatientInfo `json:"patient_info"`
	Symptoms        []string           `json:"symptoms"`
	Medications     []string           `json:"medications,omitempty"`
	Allergies       []string           `json:"allergies,omitempty"`
	Motive          string             `json:"motive"`
	Diagnosis       string             `json:"diagnosis"`
	Treatment       string             `json:"treatment"`
	Recommendations string             `json:"recommendations"`

	ExtractionError string `json:"extraction_error,omitempty"`
	DiagnosisError  string `json:"diagnosis_error,omitempty"`

	Metadata Metadata `json:"metadata"`
}

// #endregion result
