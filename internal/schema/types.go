package schema

// #region kinds

// Kind selects which result shape Validate checks.
type Kind string

const (
	KindExtraction Kind = "extraction"
	KindDiagnosis  Kind = "diagnosis"
)

// #endregion kinds

// #region result

// Result reports every violated field for one validation pass.
type Result struct {
	Valid  bool
	Errors []string
}

// #endregion result

// #region typed-shapes

// PatientInfo is the identifying block of an extraction result.
type PatientInfo struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
	ID   string `json:"id,omitempty"` // empty when the model returned null
}

// Extraction is the validated shape of the extraction step output.
// Medications and Allergies are variant fields: validated when present,
// absent otherwise.
type Extraction struct {
	PatientInfo PatientInfo `json:"patient_info"`
	Symptoms    []string    `json:"symptoms"`
	Medications []string    `json:"medications,omitempty"`
	Allergies   []string    `json:"allergies,omitempty"`
	Motive      string      `json:"motive"`
}

// Diagnosis is the validated shape of the diagnosis step output.
// All three fields are strings; recommendations-as-list is rejected.
type Diagnosis struct {
	Diagnosis       string `json:"diagnosis"`
	Treatment       string `json:"treatment"`
	Recommendations string `json:"recommendations"`
}

// #endregion typed-shapes
