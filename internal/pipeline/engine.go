package pipeline

// #region imports
import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aidoctor/go-pipeline/internal/memory"
	"github.com/aidoctor/go-pipeline/internal/model"
	"github.com/aidoctor/go-pipeline/internal/obslog"
	"github.com/aidoctor/go-pipeline/internal/prompt"
)

// #endregion imports

// #region system-prompts
const (
	extractSystem  = "You are a medical AI assistant that extracts structured information."
	diagnoseSystem = "You are a medical AI assistant that provides diagnostic assessments."
)

// #endregion system-prompts

// #region engine

// Engine drives the fixed pipeline: extract → get_context → diagnose →
// detect_drift → persist. Collaborators are injected once at construction;
// their lifecycle is owned by the process entry point, not the engine.
// The engine itself holds no per-run state and is safe for concurrent use.
type Engine struct {
	gateway  *model.Gateway
	prompts  *prompt.Loader
	store    *memory.Store
	db       *sql.DB
	language string
	syncLog  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguage sets the default transcription language.
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithSyncLogging makes observability writes synchronous. Tests use this;
// production keeps the fire-and-forget default.
func WithSyncLogging() Option {
	return func(e *Engine) { e.syncLog = true }
}

// New wires an engine and verifies its startup invariants: a usable chat
// backend, both prompt templates resolvable, and the observability table
// present. Any failure here is fatal to the process, not to a request.
func New(gw *model.Gateway, prompts *prompt.Loader, store *memory.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		gateway:  gw,
		prompts:  prompts,
		store:    store,
		db:       store.DB(),
		language: "es",
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := gw.Validate(); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	// Missing or malformed templates are a startup failure, never a
	// silent per-request default.
	if _, err := prompts.Extraction(); err != nil {
		return nil, err
	}
	if _, err := prompts.Diagnosis(); err != nil {
		return nil, err
	}
	if err := obslog.Init(e.db); err != nil {
		return nil, err
	}
	return e, nil
}

// #endregion engine

// #region process

// Process runs the full pipeline for one request. The returned error is
// non-nil only for failures before the first step begins (no input, failed
// transcription); once the pipeline starts, every step degrades instead of
// aborting and the Result always comes back with Success=true.
func (e *Engine) Process(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	requestID := uuid.New().String()

	text := strings.TrimSpace(req.Text)
	inputType := "text"

	if req.AudioRef != "" {
		inputType = "audio"
		// The core owns the uploaded file: delete after use on both
		// success and failure paths.
		defer func() {
			if err := os.Remove(req.AudioRef); err != nil && !os.IsNotExist(err) {
				log.Printf("[PIPE] remove audio %s: %v", req.AudioRef, err)
			}
		}()

		transcript, err := e.gateway.Transcribe(ctx, req.AudioRef, e.resolveLanguage(req.Language))
		if err != nil {
			return e.fail(requestID, req.SubjectID, inputType, start, err)
		}
		text = strings.TrimSpace(transcript)
	}

	if text == "" {
		return e.fail(requestID, req.SubjectID, inputType, start,
			fmt.Errorf("either text or audio_ref must be provided"))
	}

	st := &RunState{
		RequestID: requestID,
		InputType: inputType,
		SubjectID: req.SubjectID,
		Backend:   req.Backend,
		Messages:  []Message{{Role: "user", Content: text}},
		StartedAt: start,
	}

	e.run(ctx, st)
	return e.finish(st), nil
}

func (e *Engine) resolveLanguage(lang string) string {
	if lang != "" {
		return lang
	}
	return e.language
}

// run executes the ordered step list. Steps never return errors: each one
// records its own degraded outcome on the state and the next step runs
// regardless. There is no abort transition.
func (e *Engine) run(ctx context.Context, st *RunState) {
	steps := []struct {
		name string
		fn   func(context.Context, *RunState)
	}{
		{"extract", e.stepExtract},
		{"get_context", e.stepGetContext},
		{"diagnose", e.stepDiagnose},
		{"detect_drift", e.stepDetectDrift},
		{"persist", e.stepPersist},
	}
	for _, s := range steps {
		s.fn(ctx, st)
	}
}

// fail handles the one abort path: a hard failure before the first step.
// The caller gets a generic message, never a raw cause; the cause goes to
// the observability log.
func (e *Engine) fail(requestID, subjectID, inputType string, start time.Time, cause error) (Result, error) {
	latency := time.Since(start).Milliseconds()
	log.Printf("[PIPE] run %s failed before pipeline start: %v", requestID, cause)

	e.logEntry(obslog.Entry{
		RequestID:     requestID,
		SubjectID:     subjectOrAnon(subjectID),
		InputType:     inputType,
		ModelName:     e.gateway.ModelName(""),
		PromptVersion: prompt.CompositeVersion,
		LatencyMS:     latency,
		Success:       false,
		ErrorMsg:      cause.Error(),
	})

	topErr := &TopLevelError{Cause: cause}
	return Result{
		Success: false,
		Error:   topErr.Error(),
		Metadata: Metadata{
			RequestID:     requestID,
			InputType:     inputType,
			ModelName:     e.gateway.ModelName(""),
			PromptVersion: prompt.CompositeVersion,
			LatencyMS:     latency,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
		},
	}, topErr
}

// #endregion process

// #region finish

func (e *Engine) finish(st *RunState) Result {
	latency := time.Since(st.StartedAt).Milliseconds()

	res := Result{
		Success: true,
		Metadata: Metadata{
			RequestID:     st.RequestID,
			SubjectID:     st.SubjectID,
			InputType:     st.InputType,
			ModelName:     e.gateway.ModelName(st.Backend),
			PromptVersion: prompt.CompositeVersion,
			LatencyMS:     latency,
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
			DriftDetected: len(st.DriftFlags) > 0,
			DriftFlags:    st.DriftFlags,
		},
	}

	if st.ExtractErr == nil {
		res.PatientInfo = st.Extraction.PatientInfo
		res.Symptoms = st.Extraction.Symptoms
		res.Medications = st.Extraction.Medications
		res.Allergies = st.Extraction.Allergies
		res.Motive = st.Extraction.Motive
	} else {
		res.ExtractionError = st.ExtractErr.Error()
	}

	if st.DiagnoseErr == nil {
		res.Diagnosis = st.Diagnosis.Diagnosis
		res.Treatment = st.Diagnosis.Treatment
		res.Recommendations = st.Diagnosis.Recommendations
	} else {
		res.DiagnosisError = st.DiagnoseErr.Error()
	}

	e.logEntry(obslog.Entry{
		RequestID:     st.RequestID,
		SubjectID:     subjectOrAnon(st.SubjectID),
		InputType:     st.InputType,
		ModelName:     res.Metadata.ModelName,
		PromptVersion: prompt.CompositeVersion,
		LatencyMS:     latency,
		SymptomCount:  len(st.Extraction.Symptoms),
		ExtractOK:     st.ExtractErr == nil,
		DiagnoseOK:    st.DiagnoseErr == nil,
		DriftFlags:    st.DriftFlags,
		Features:      st.Features,
		Success:       true,
	})

	log.Printf("[PIPE] run %s done: input=%s symptoms=%d extract_ok=%v diagnose_ok=%v drift=%v latency=%dms",
		st.RequestID, st.InputType, len(st.Extraction.Symptoms),
		st.ExtractErr == nil, st.DiagnoseErr == nil, len(st.DriftFlags) > 0, latency)

	return res
}

// logEntry appends the observability record. Fire-and-forget with respect
// to the caller's response: a logging failure never affects the result.
func (e *Engine) logEntry(entry obslog.Entry) {
	write := func() {
		if err := obslog.LogRun(e.db, entry); err != nil {
			log.Printf("[PIPE] observability log failed for %s: %v", entry.RequestID, err)
		}
	}
	if e.syncLog {
		write()
		return
	}
	go write()
}

func subjectOrAnon(subjectID string) string {
	if subjectID == "" {
		return "anonymous"
	}
	return subjectID
}

// #endregion finish

// #region sub-operations

// ExtractOnly runs just the extraction sub-step and returns the parsed
// object, or the typed step error on any failure.
func (e *Engine) ExtractOnly(ctx context.Context, text, backend string) (map[string]any, error) {
	obj, stepErr := e.extractFromText(ctx, backend, text)
	if stepErr != nil {
		return nil, stepErr
	}
	return obj, nil
}

// DiagnoseOnly generates a diagnosis from a free-text symptom description,
// enriched with the subject's history when a subject is given.
func (e *Engine) DiagnoseOnly(ctx context.Context, symptoms, subjectID, backend string) (map[string]any, error) {
	var history []string
	if subjectID != "" {
		records, err := e.store.Query(subjectID, symptoms, 5)
		if err != nil {
			log.Printf("[PIPE] diagnose-only history lookup failed: %v", err)
		}
		for _, rec := range records {
			history = append(history, formatRecord(rec))
		}
	}

	var b strings.Builder
	b.WriteString("Current Symptoms: " + symptoms + "\n")
	if len(history) > 0 {
		b.WriteString("\nRelevant Medical History:\n")
		for _, h := range history {
			b.WriteString("- " + h + "\n")
		}
	} else {
		b.WriteString("\nNo relevant medical history found.\n")
	}

	obj, stepErr := e.diagnoseFromContext(ctx, backend, b.String())
	if stepErr != nil {
		return nil, stepErr
	}
	return obj, nil
}

// TranscribeOnly transcribes one uploaded audio file. The file is deleted
// after use, on both success and failure paths.
func (e *Engine) TranscribeOnly(ctx context.Context, audioRef, language string) (string, error) {
	defer func() {
		if err := os.Remove(audioRef); err != nil && !os.IsNotExist(err) {
			log.Printf("[PIPE] remove audio %s: %v", audioRef, err)
		}
	}()
	return e.gateway.Transcribe(ctx, audioRef, e.resolveLanguage(language))
}

// SaveMemory appends a free-form record to a subject's namespace.
func (e *Engine) SaveMemory(subjectID, content, contentType string) (string, error) {
	if contentType == "" {
		contentType = "symptom"
	}
	return e.store.Save(subjectID, content, contentType)
}

// QueryMemory returns a subject's records ranked by relevance to query.
func (e *Engine) QueryMemory(subjectID, query string, limit int) ([]memory.Record, error) {
	return e.store.Query(subjectID, query, limit)
}

// #endregion sub-operations
