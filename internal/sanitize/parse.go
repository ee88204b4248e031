package sanitize

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports text that failed to decode as JSON. Text carries the
// offending input so callers can log or quarantine it.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("sanitize: parse response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes text into a generic JSON document. It tolerates a leftover
// markdown fence and Windows line endings but performs no other repair; run
// Sanitize first for model output. An empty input or undecodable text yields
// a *ParseError; Parse never substitutes a default document. An explicit
// empty object decodes to an empty, non-nil map.
func Parse(text string) (map[string]any, error) {
	cleaned := normalize(text)
	if cleaned == "" {
		return nil, &ParseError{Text: text, Err: fmt.Errorf("empty response")}
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, &ParseError{Text: cleaned, Err: err}
	}
	return doc, nil
}

// ParseInto decodes text into v, applying the same normalization as Parse.
func ParseInto(text string, v any) error {
	cleaned := normalize(text)
	if cleaned == "" {
		return &ParseError{Text: text, Err: fmt.Errorf("empty response")}
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &ParseError{Text: cleaned, Err: err}
	}
	return nil
}

func normalize(text string) string {
	cleaned := stripFences(strings.TrimSpace(text))
	cleaned = strings.ReplaceAll(cleaned, "\r\n", "\n")
	cleaned = strings.ReplaceAll(cleaned, "\r", "\n")
	return strings.TrimSpace(cleaned)
}
