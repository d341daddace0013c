package prompt

// #region imports
import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// #endregion imports

// #region versions

// Fixed template versions. The composite string is what run metadata carries.
const (
	ExtractionVersion = "extract_v2"
	DiagnosisVersion  = "diagnosis_v3"
	CompositeVersion  = ExtractionVersion + "," + DiagnosisVersion
)

// #endregion versions

// #region template

// Template is one versioned prompt with a single substitution placeholder.
type Template struct {
	Version     string
	Text        string
	Placeholder string // "{text}" or "{context}"
}

// Render substitutes the placeholder with value.
func (t *Template) Render(value string) string {
	return strings.ReplaceAll(t.Text, t.Placeholder, value)
}

// #endregion template

// #region loader

// Loader resolves versioned templates from a static directory. Templates are
// read once and cached; a missing or malformed template is an error, never a
// substituted default — callers must treat that as a fatal step failure.
type Loader struct {
	dir string

	mu    sync.Mutex
	cache map[string]*Template
}

// NewLoader creates a Loader over dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, cache: make(map[string]*Template)}
}

// Extraction loads the extraction template (JSON file with a "prompt" key,
// expecting a {text} placeholder).
func (l *Loader) Extraction() (*Template, error) {
	return l.load(ExtractionVersion, "{text}", l.readExtraction)
}

// Diagnosis loads the diagnosis template (plain text, expecting a {context}
// placeholder).
func (l *Loader) Diagnosis() (*Template, error) {
	return l.load(DiagnosisVersion, "{context}", l.readDiagnosis)
}

func (l *Loader) load(version, placeholder string, read func() (string, error)) (*Template, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.cache[version]; ok {
		return t, nil
	}
	text, err := read()
	if err != nil {
		return nil, err
	}
	if !strings.Contains(text, placeholder) {
		return nil, fmt.Errorf("template %s: missing %s placeholder", version, placeholder)
	}
	t := &Template{Version: version, Text: text, Placeholder: placeholder}
	l.cache[version] = t
	return t, nil
}

// #endregion loader

// #region readers

func (l *Loader) readExtraction() (string, error) {
	path := filepath.Join(l.dir, ExtractionVersion+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", path, err)
	}
	var parsed struct {
		Version string `json:"version"`
		Prompt  string `json:"prompt"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("parse template %s: %w", path, err)
	}
	if parsed.Prompt == "" {
		return "", fmt.Errorf("template %s: empty prompt", path)
	}
	return parsed.Prompt, nil
}

func (l *Loader) readDiagnosis() (string, error) {
	path := filepath.Join(l.dir, DiagnosisVersion+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return "", fmt.Errorf("template %s: empty prompt", path)
	}
	return string(data), nil
}

// #endregion readers
