package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemplates(t *testing.T, extraction, diagnosis string) *Loader {
	t.Helper()
	dir := t.TempDir()
	if extraction != "" {
		if err := os.WriteFile(filepath.Join(dir, ExtractionVersion+".json"), []byte(extraction), 0644); err != nil {
			t.Fatalf("write extraction: %v", err)
		}
	}
	if diagnosis != "" {
		if err := os.WriteFile(filepath.Join(dir, DiagnosisVersion+".txt"), []byte(diagnosis), 0644); err != nil {
			t.Fatalf("write diagnosis: %v", err)
		}
	}
	return NewLoader(dir)
}

func TestExtractionTemplate(t *testing.T) {
	l := writeTemplates(t, `{"version":"extract_v2","prompt":"Extract from: {text}"}`, "")

	tmpl, err := l.Extraction()
	if err != nil {
		t.Fatalf("Extraction: %v", err)
	}
	if tmpl.Version != ExtractionVersion {
		t.Fatalf("version: got %s", tmpl.Version)
	}
	if got := tmpl.Render("fever and cough"); got != "Extract from: fever and cough" {
		t.Fatalf("render: got %q", got)
	}
}

func TestDiagnosisTemplate(t *testing.T) {
	l := writeTemplates(t, "", "Diagnose based on:\n{context}\nRespond as JSON.")

	tmpl, err := l.Diagnosis()
	if err != nil {
		t.Fatalf("Diagnosis: %v", err)
	}
	rendered := tmpl.Render("Patient Information:\n- Name: Ana")
	if !strings.Contains(rendered, "Patient Information") {
		t.Fatalf("render: got %q", rendered)
	}
	if strings.Contains(rendered, "{context}") {
		t.Fatal("placeholder not substituted")
	}
}

func TestMissingTemplateIsError(t *testing.T) {
	l := NewLoader(t.TempDir())

	if _, err := l.Extraction(); err == nil {
		t.Fatal("expected error for missing extraction template")
	}
	if _, err := l.Diagnosis(); err == nil {
		t.Fatal("expected error for missing diagnosis template")
	}
}

func TestMalformedExtractionJSON(t *testing.T) {
	l := writeTemplates(t, `not-json`, "")
	if _, err := l.Extraction(); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestEmptyPromptIsError(t *testing.T) {
	l := writeTemplates(t, `{"version":"extract_v2","prompt":""}`, "   \n")
	if _, err := l.Extraction(); err == nil {
		t.Fatal("expected error for empty extraction prompt")
	}
	if _, err := l.Diagnosis(); err == nil {
		t.Fatal("expected error for blank diagnosis prompt")
	}
}

func TestMissingPlaceholderIsError(t *testing.T) {
	l := writeTemplates(t, `{"version":"extract_v2","prompt":"no placeholder here"}`, "also none")
	if _, err := l.Extraction(); err == nil {
		t.Fatal("expected error for missing {text} placeholder")
	}
	if _, err := l.Diagnosis(); err == nil {
		t.Fatal("expected error for missing {context} placeholder")
	}
}

func TestTemplateCached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ExtractionVersion+".json")
	if err := os.WriteFile(path, []byte(`{"prompt":"first {text}"}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	l := NewLoader(dir)

	first, err := l.Extraction()
	if err != nil {
		t.Fatalf("Extraction: %v", err)
	}

	// Rewriting the file must not change the cached template.
	if err := os.WriteFile(path, []byte(`{"prompt":"second {text}"}`), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	again, err := l.Extraction()
	if err != nil {
		t.Fatalf("Extraction again: %v", err)
	}
	if again.Text != first.Text {
		t.Fatalf("expected cached text %q, got %q", first.Text, again.Text)
	}
}
