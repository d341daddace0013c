package pipeline

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aidoctor/go-pipeline/internal/drift"
	"github.com/aidoctor/go-pipeline/internal/memory"
	"github.com/aidoctor/go-pipeline/internal/obslog"
	"github.com/aidoctor/go-pipeline/internal/schema"
)

// #endregion imports

// #region extract

func (e *Engine) stepExtract(ctx context.Context, st *RunState) {
	obj, stepErr := e.extractFromText(ctx, st.Backend, st.lastMessage())
	if stepErr != nil {
		// Degrade-not-abort: the run continues with the error marker in
		// place of structured data.
		st.Extracted = degradedPayload(stepErr)
		st.ExtractErr = stepErr
		log.Printf("[PIPE] extract degraded (%s): %s", stepErr.Kind, stepErr.Msg)
		st.record("extract", stepErr)
		return
	}
	st.Extracted = obj
	st.Extraction = schema.DecodeExtraction(obj)
	st.record("extract", nil)
}

func (e *Engine) extractFromText(ctx context.Context, backend, text string) (map[string]any, *StepError) {
	tpl, err := e.prompts.Extraction()
	if err != nil {
		return nil, &StepError{Kind: ErrConfig, Msg: err.Error()}
	}

	raw, err := e.gateway.CompleteWith(ctx, backend, tpl.Render(text), extractSystem)
	if err != nil {
		return nil, &StepError{Kind: ErrProvider, Msg: err.Error()}
	}

	obj, err := ParseObject(StripFences(raw))
	if err != nil {
		return nil, &StepError{Kind: ErrParse, Msg: err.Error()}
	}

	if v := schema.Validate(schema.KindExtraction, obj); !v.Valid {
		return nil, &StepError{
			Kind:       ErrValidation,
			Msg:        "extraction failed schema validation",
			Violations: v.Errors,
		}
	}
	return obj, nil
}

// degradedPayload is the error-marker object a failed step leaves in place
// of its structured output. Validation violations ride along for
// diagnostics.
func degradedPayload(stepErr *StepError) map[string]any {
	payload := map[string]any{"error": stepErr.Msg}
	if len(stepErr.Violations) > 0 {
		violations := make([]any, len(stepErr.Violations))
		for i, v := range stepErr.Violations {
			violations[i] = v
		}
		payload["validation_errors"] = violations
	}
	return payload
}

// #endregion extract

// #region get-context

func (e *Engine) stepGetContext(ctx context.Context, st *RunState) {
	// Context is enrichment, not a required input: no subject means no
	// lookup, and a store failure means empty context, never an abort.
	if st.SubjectID == "" {
		st.record("get_context", nil)
		return
	}

	query := strings.Join(st.Extraction.Symptoms, " ")
	records, err := e.store.Query(st.SubjectID, query, 5)
	if err != nil {
		st.ContextErr = &StepError{Kind: ErrStore, Msg: err.Error()}
		log.Printf("[PIPE] get_context degraded: %v", err)
		st.record("get_context", st.ContextErr)
		return
	}

	lines := make([]string, 0, len(records))
	for _, rec := range records {
		lines = append(lines, formatRecord(rec))
	}
	st.Context = strings.Join(lines, "\n")
	st.record("get_context", nil)
}

// formatRecord renders one memory record as a one-line history entry.
// Consultation records carry a JSON summary; anything else is treated as a
// free-text note.
func formatRecord(rec memory.Record) string {
	ts := rec.CreatedAt.UTC().Format(time.RFC3339)

	if rec.ContentType == "consultation" {
		var doc consultationDoc
		if err := json.Unmarshal([]byte(rec.Content), &doc); err == nil {
			return fmt.Sprintf("Previous consultation (%s): Symptoms: %s. Diagnosis: %s",
				ts, strings.Join(doc.Symptoms, ", "), doc.Diagnosis)
		}
	}
	return fmt.Sprintf("Previous note (%s): %s", ts, collapseLine(rec.Content))
}

func collapseLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// #endregion get-context

// #region diagnose

func (e *Engine) stepDiagnose(ctx context.Context, st *RunState) {
	// The diagnosis step always runs, even over degraded extraction data:
	// a partial assessment beats none.
	obj, stepErr := e.diagnoseFromContext(ctx, st.Backend, prepareContext(st))
	if stepErr != nil {
		st.DiagnosisRaw = degradedPayload(stepErr)
		st.DiagnoseErr = stepErr
		log.Printf("[PIPE] diagnose degraded (%s): %s", stepErr.Kind, stepErr.Msg)
		st.record("diagnose", stepErr)
		return
	}
	st.DiagnosisRaw = obj
	st.Diagnosis = schema.DecodeDiagnosis(obj)
	st.record("diagnose", nil)
}

func (e *Engine) diagnoseFromContext(ctx context.Context, backend, contextBlock string) (map[string]any, *StepError) {
	tpl, err := e.prompts.Diagnosis()
	if err != nil {
		return nil, &StepError{Kind: ErrConfig, Msg: err.Error()}
	}

	raw, err := e.gateway.CompleteWith(ctx, backend, tpl.Render(contextBlock), diagnoseSystem)
	if err != nil {
		return nil, &StepError{Kind: ErrProvider, Msg: err.Error()}
	}

	obj, err := ParseObject(StripFences(raw))
	if err != nil {
		return nil, &StepError{Kind: ErrParse, Msg: err.Error()}
	}

	if v := schema.Validate(schema.KindDiagnosis, obj); !v.Valid {
		return nil, &StepError{
			Kind:       ErrValidation,
			Msg:        "diagnosis failed schema validation",
			Violations: v.Errors,
		}
	}
	return obj, nil
}

// prepareContext assembles the diagnosis prompt context: the structured
// extraction (or its error marker), the retrieved history, and the
// original patient statement.
func prepareContext(st *RunState) string {
	var b strings.Builder

	if st.ExtractErr == nil {
		pi := st.Extraction.PatientInfo
		id := pi.ID
		if id == "" {
			id = "Not provided"
		}
		fmt.Fprintf(&b, "Patient Information:\n- Name: %s\n- Age: %d\n- ID: %s\n\n", pi.Name, pi.Age, id)
		fmt.Fprintf(&b, "Current Symptoms: %s\n", strings.Join(st.Extraction.Symptoms, ", "))
		if len(st.Extraction.Medications) > 0 {
			fmt.Fprintf(&b, "Current Medications: %s\n", strings.Join(st.Extraction.Medications, ", "))
		}
		if len(st.Extraction.Allergies) > 0 {
			fmt.Fprintf(&b, "Known Allergies: %s\n", strings.Join(st.Extraction.Allergies, ", "))
		}
		fmt.Fprintf(&b, "Reason for Visit: %s\n", st.Extraction.Motive)
	} else {
		serialized, _ := json.Marshal(st.Extracted)
		fmt.Fprintf(&b, "Structured extraction unavailable (%s).\nPartial data: %s\n",
			st.ExtractErr.Msg, serialized)
	}

	if st.Context != "" {
		b.WriteString("\nRelevant Medical History:\n")
		for _, line := range strings.Split(st.Context, "\n") {
			b.WriteString("- " + line + "\n")
		}
	} else {
		b.WriteString("\nNo relevant medical history found.\n")
	}

	fmt.Fprintf(&b, "\nOriginal patient statement:\n%s\n", st.lastMessage())
	return b.String()
}

// #endregion diagnose

// #region detect-drift

func (e *Engine) stepDetectDrift(ctx context.Context, st *RunState) {
	_ = ctx

	subject := subjectOrAnon(st.SubjectID)
	entries, err := obslog.RecentRuns(e.db, subject, drift.WindowSize)
	if err != nil {
		// Window unavailable: empty flags, never an abort.
		log.Printf("[PIPE] detect_drift degraded: %v", err)
		st.record("detect_drift", &StepError{Kind: ErrStore, Msg: err.Error()})
		return
	}

	window := make([]drift.WindowEntry, 0, len(entries))
	for _, entry := range entries {
		// Only runs with a usable extraction belong in the window.
		if !entry.Success || !entry.ExtractOK {
			continue
		}
		window = append(window, drift.WindowEntry{
			SymptomCount: entry.SymptomCount,
			Features:     entry.Features,
		})
	}

	res := drift.Detect(st.Extracted, window)
	st.DriftFlags = res.Flags
	st.DriftMetrics = res.Metrics

	st.Features = drift.Features(st.Extraction, st.Diagnosis)
	if sim, ok := drift.Similarity(st.Features, window); ok {
		st.DriftMetrics.Similarity = sim
		if drift.LowSimilarity(sim) {
			log.Printf("[DRIFT] low content similarity %.3f for run %s", sim, st.RequestID)
		}
	}

	if res.HasDrift {
		log.Printf("[DRIFT] run %s: %v", st.RequestID, res.Flags)
	}
	st.record("detect_drift", nil)
}

// #endregion detect-drift

// #region persist

// consultationDoc is the JSON summary persisted per completed run.
type consultationDoc struct {
	Symptoms        []string `json:"symptoms"`
	Diagnosis       string   `json:"diagnosis"`
	Treatment       string   `json:"treatment"`
	Recommendations string   `json:"recommendations"`
	Input           string   `json:"input"`
	Timestamp       string   `json:"timestamp"`
}

func (e *Engine) stepPersist(ctx context.Context, st *RunState) {
	_ = ctx

	// No subject means no persistence side effects.
	if st.SubjectID == "" {
		st.record("persist", nil)
		return
	}

	doc := consultationDoc{
		Symptoms:        st.Extraction.Symptoms,
		Diagnosis:       st.Diagnosis.Diagnosis,
		Treatment:       st.Diagnosis.Treatment,
		Recommendations: st.Diagnosis.Recommendations,
		Input:           st.lastMessage(),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	}
	content, err := json.Marshal(doc)
	if err != nil {
		st.PersistErr = &StepError{Kind: ErrStore, Msg: err.Error()}
		st.record("persist", st.PersistErr)
		return
	}

	if _, err := e.store.Save(st.SubjectID, string(content), "consultation"); err != nil {
		// Best-effort: logged, never surfaced to the caller.
		st.PersistErr = &StepError{Kind: ErrStore, Msg: err.Error()}
		log.Printf("[PIPE] persist degraded for %s: %v", st.RequestID, err)
		st.record("persist", st.PersistErr)
		return
	}
	st.record("persist", nil)
}

// #endregion persist
