package classify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError reports an unusable model response. Raw carries the full
// response for diagnosis; Error truncates it.
type ParseError struct {
	Stage string
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("%s: %v (response: %q)", e.Stage, e.Err, raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// jsonObject grabs the outermost brace-delimited span, newlines
// included. Models wrap JSON in prose often enough to need it.
var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSON pulls a JSON object out of a model response. First pass
// strips code fences and tries a strict parse; second pass falls back
// to the widest brace-delimited substring.
func ExtractJSON(raw string) ([]byte, error) {
	cleaned := stripFences(raw)

	if json.Valid([]byte(cleaned)) {
		return []byte(cleaned), nil
	}

	if m := jsonObject.FindString(cleaned); m != "" && json.Valid([]byte(m)) {
		return []byte(m), nil
	}

	return nil, &ParseError{
		Stage: "extract json",
		Raw:   raw,
		Err:   fmt.Errorf("no JSON object found"),
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
