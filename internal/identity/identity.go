package identity

// #region imports
import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aidoctor/go-pipeline/internal/schema"
)

// #endregion imports

// #region subject-id

// AnonymousSubject is the namespace used when no subject can be derived.
const AnonymousSubject = "anonymous"

// SubjectID derives a stable subject identifier from patient info:
// SHA-256 over "name_age_id" (name lowercased and trimmed), formatted as
// "P" + the first 16 hex characters uppercased. The same patient details
// always map to the same namespace, so returning patients are correlated
// without an explicit ID.
func SubjectID(info schema.PatientInfo) string {
	name := strings.ToLower(strings.TrimSpace(info.Name))
	age := ""
	if info.Age != 0 {
		age = fmt.Sprintf("%d", info.Age)
	}
	identifier := fmt.Sprintf("%s_%s_%s", name, age, info.ID)

	sum := sha256.Sum256([]byte(identifier))
	return "P" + strings.ToUpper(hex.EncodeToString(sum[:])[:16])
}

// #endregion subject-id
