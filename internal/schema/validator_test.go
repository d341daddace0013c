package schema

import (
	"reflect"
	"testing"
)

func validExtraction() map[string]any {
	return map[string]any{
		"patient_info": map[string]any{"name": "Ana Torres", "age": float64(34), "id": "DNI-221"},
		"symptoms":     []any{"fever", "cough"},
		"medications":  []any{"paracetamol"},
		"allergies":    []any{},
		"motive":       "persistent fever for three days",
	}
}

func TestValidateExtractionValid(t *testing.T) {
	res := Validate(KindExtraction, validExtraction())
	if !res.Valid {
		t.Fatalf("expected valid, got errors %v", res.Errors)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", res.Errors)
	}
}

func TestValidateExtractionMissingPatientInfo(t *testing.T) {
	data := validExtraction()
	delete(data, "patient_info")

	res := Validate(KindExtraction, data)
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if !contains(res.Errors, "Missing patient_info") {
		t.Fatalf("expected 'Missing patient_info' in %v", res.Errors)
	}
}

func TestValidateExtractionCollectsAllErrors(t *testing.T) {
	data := map[string]any{
		"patient_info": map[string]any{"name": 42, "age": "old", "id": 7},
		"symptoms":     "fever",
	}

	res := Validate(KindExtraction, data)
	if res.Valid {
		t.Fatal("expected invalid")
	}
	for _, want := range []string{
		"patient_info.name must be a string",
		"patient_info.age must be numeric",
		"patient_info.id must be a string or null",
		"symptoms must be a list",
		"Missing motive",
	} {
		if !contains(res.Errors, want) {
			t.Fatalf("expected %q in %v", want, res.Errors)
		}
	}
}

func TestValidateExtractionNullID(t *testing.T) {
	data := validExtraction()
	data["patient_info"].(map[string]any)["id"] = nil

	res := Validate(KindExtraction, data)
	if !res.Valid {
		t.Fatalf("null id should be accepted, got %v", res.Errors)
	}
}

func TestValidateExtractionBadListElement(t *testing.T) {
	data := validExtraction()
	data["symptoms"] = []any{"fever", 3, "cough", nil}

	res := Validate(KindExtraction, data)
	if res.Valid {
		t.Fatal("expected invalid")
	}
	if !contains(res.Errors, "symptoms[1] must be a string") {
		t.Fatalf("expected indexed error in %v", res.Errors)
	}
	if !contains(res.Errors, "symptoms[3] must be a string") {
		t.Fatalf("expected indexed error in %v", res.Errors)
	}
}

func TestValidateExtractionOptionalLists(t *testing.T) {
	data := validExtraction()
	delete(data, "medications")
	delete(data, "allergies")

	res := Validate(KindExtraction, data)
	if !res.Valid {
		t.Fatalf("medications and allergies are optional, got %v", res.Errors)
	}

	data["medications"] = []any{"ibuprofen", 500}
	res = Validate(KindExtraction, data)
	if res.Valid {
		t.Fatal("expected invalid for bad medications element")
	}
	if !contains(res.Errors, "medications[1] must be a string") {
		t.Fatalf("expected medications error in %v", res.Errors)
	}
}

func TestValidateDiagnosis(t *testing.T) {
	res := Validate(KindDiagnosis, map[string]any{
		"diagnosis":       "viral pharyngitis",
		"treatment":       "rest and fluids",
		"recommendations": "return if fever persists",
	})
	if !res.Valid {
		t.Fatalf("expected valid, got %v", res.Errors)
	}

	res = Validate(KindDiagnosis, map[string]any{"diagnosis": 1})
	if res.Valid {
		t.Fatal("expected invalid")
	}
	for _, want := range []string{
		"diagnosis must be a string",
		"Missing treatment",
		"Missing recommendations",
	} {
		if !contains(res.Errors, want) {
			t.Fatalf("expected %q in %v", want, res.Errors)
		}
	}
}

func TestValidateUnknownKind(t *testing.T) {
	res := Validate(Kind("bogus"), map[string]any{})
	if res.Valid {
		t.Fatal("expected invalid for unknown kind")
	}
}

func TestValidateDeterministic(t *testing.T) {
	data := map[string]any{
		"patient_info": map[string]any{"name": 42, "age": "old"},
		"symptoms":     []any{1, 2},
	}
	first := Validate(KindExtraction, data)
	for i := 0; i < 5; i++ {
		again := Validate(KindExtraction, data)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %v vs %v", i, first, again)
		}
	}
}

func TestDecodeExtraction(t *testing.T) {
	ex := DecodeExtraction(validExtraction())
	if ex.PatientInfo.Name != "Ana Torres" {
		t.Fatalf("name: got %q", ex.PatientInfo.Name)
	}
	if ex.PatientInfo.Age != 34 {
		t.Fatalf("age: got %d", ex.PatientInfo.Age)
	}
	if ex.PatientInfo.ID != "DNI-221" {
		t.Fatalf("id: got %q", ex.PatientInfo.ID)
	}
	if !reflect.DeepEqual(ex.Symptoms, []string{"fever", "cough"}) {
		t.Fatalf("symptoms: got %v", ex.Symptoms)
	}
	if ex.Motive == "" {
		t.Fatal("expected non-empty motive")
	}
}

func TestDecodeDiagnosis(t *testing.T) {
	d := DecodeDiagnosis(map[string]any{
		"diagnosis":       "migraine",
		"treatment":       "sumatriptan",
		"recommendations": "avoid triggers",
	})
	if d.Diagnosis != "migraine" || d.Treatment != "sumatriptan" || d.Recommendations != "avoid triggers" {
		t.Fatalf("unexpected decode: %+v", d)
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
