package genai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnparsable is returned when generated text contains no decodable JSON.
var ErrUnparsable = errors.New("genai: response text is not valid JSON")

// DecodeJSON unmarshals generated text into v. Models sometimes wrap JSON in
// markdown fences or preface it with prose, so fences are stripped and, as a
// fallback, the outermost brace-delimited span is tried.
func DecodeJSON(text string, v any) error {
	cleaned := stripFences(text)
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("%w: %.80q", ErrUnparsable, text)
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
