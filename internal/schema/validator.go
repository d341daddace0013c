package schema

// #region imports
import (
	"fmt"
	"math"
	"strings"
)

// #endregion imports

// #region validate

// Validate checks data (a parsed JSON object) against the named kind.
// It never panics and never stops at the first violation: every bad field
// is reported. Safe for concurrent use; identical input yields identical
// output.
func Validate(kind Kind, data map[string]any) Result {
	var errs []string
	switch kind {
	case KindExtraction:
		errs = validateExtraction(data)
	case KindDiagnosis:
		errs = validateDiagnosis(data)
	default:
		errs = []string{fmt.Sprintf("unknown schema kind %q", kind)}
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

// #endregion validate

// #region extraction

func validateExtraction(data map[string]any) []string {
	var errs []string

	pi, ok := data["patient_info"]
	if !ok {
		errs = append(errs, "Missing patient_info")
	} else if piMap, isMap := pi.(map[string]any); !isMap {
		errs = append(errs, "patient_info must be an object")
	} else {
		if _, isStr := piMap["name"].(string); !isStr {
			errs = append(errs, "patient_info.name must be a string")
		}
		if !isNumber(piMap["age"]) {
			errs = append(errs, "patient_info.age must be numeric")
		}
		if id, present := piMap["id"]; present && id != nil {
			if _, isStr := id.(string); !isStr {
				errs = append(errs, "patient_info.id must be a string or null")
			}
		}
	}

	errs = append(errs, validateStringList(data, "symptoms", true)...)
	errs = append(errs, validateStringList(data, "medications", false)...)
	errs = append(errs, validateStringList(data, "allergies", false)...)

	if motive, ok := data["motive"]; !ok {
		errs = append(errs, "Missing motive")
	} else if _, isStr := motive.(string); !isStr {
		errs = append(errs, "motive must be a string")
	}

	return errs
}

// validateStringList checks that field, when present (or when required),
// is a list whose every element is a string, reporting each bad index.
func validateStringList(data map[string]any, field string, required bool) []string {
	raw, ok := data[field]
	if !ok {
		if required {
			return []string{"Missing " + field}
		}
		return nil
	}
	list, isList := raw.([]any)
	if !isList {
		return []string{field + " must be a list"}
	}
	var errs []string
	for i, item := range list {
		if _, isStr := item.(string); !isStr {
			errs = append(errs, fmt.Sprintf("%s[%d] must be a string", field, i))
		}
	}
	return errs
}

// #endregion extraction

// #region diagnosis

func validateDiagnosis(data map[string]any) []string {
	var errs []string
	for _, field := range []string{"diagnosis", "treatment", "recommendations"} {
		raw, ok := data[field]
		if !ok {
			errs = append(errs, "Missing "+field)
			continue
		}
		if _, isStr := raw.(string); !isStr {
			errs = append(errs, field+" must be a string")
		}
	}
	return errs
}

// #endregion diagnosis

// #region decode

// DecodeExtraction converts a validated extraction object into its typed
// form. Call only after Validate reports Valid; unknown or malformed fields
// are dropped silently here.
func DecodeExtraction(data map[string]any) Extraction {
	var ex Extraction
	if pi, ok := data["patient_info"].(map[string]any); ok {
		ex.PatientInfo.Name, _ = pi["name"].(string)
		ex.PatientInfo.Age = asInt(pi["age"])
		if id, ok := pi["id"].(string); ok {
			ex.PatientInfo.ID = id
		}
	}
	ex.Symptoms = asStringList(data["symptoms"])
	ex.Medications = asStringList(data["medications"])
	ex.Allergies = asStringList(data["allergies"])
	ex.Motive, _ = data["motive"].(string)
	return ex
}

// DecodeDiagnosis converts a validated diagnosis object into its typed form.
func DecodeDiagnosis(data map[string]any) Diagnosis {
	var d Diagnosis
	d.Diagnosis, _ = data["diagnosis"].(string)
	d.Treatment, _ = data["treatment"].(string)
	d.Recommendations, _ = data["recommendations"].(string)
	return d
}

// #endregion decode

// #region helpers

func isNumber(v any) bool {
	switch n := v.(type) {
	case float64:
		return !math.IsNaN(n) && !math.IsInf(n, 0)
	case int, int64, float32:
		return true
	default:
		return false
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

func asStringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, strings.TrimSpace(s))
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// #endregion helpers
