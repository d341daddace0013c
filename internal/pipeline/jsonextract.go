package pipeline

// #region imports
import (
	"encoding/json"
	"fmt"
	"strings"
)

// #endregion imports

// #region fence-stripping

// StripFences removes markdown code-fence markers from a model completion.
// Handles a leading ``` with an optional language tag and a trailing ```.
// Kept as an explicit normalization even for backends with structured
// output, since not all of them support it.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop the language tag, if any, up to the first newline.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(s[:idx])
		if firstLine == "" || isLanguageTag(firstLine) {
			s = s[idx+1:]
		}
	} else {
		s = strings.TrimSpace(s)
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return len(s) <= 16
}

// #endregion fence-stripping

// #region parse

// ParseObject parses a fence-stripped completion into a JSON object.
// A parse failure here is distinct from a provider failure so the two can
// be told apart in logs.
func ParseObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, fmt.Errorf("invalid JSON in completion: %w", err)
	}
	return obj, nil
}

// #endregion parse
