package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParsedAnswer is the decoded form of one model completion.
type ParsedAnswer struct {
	Text string
}

// ParseError reports a completion that looked structured but could not
// be decoded. Raw carries the full model output so the caller can decide
// what to fall back to.
type ParseError struct {
	Raw   string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pipeline: parse answer: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ParseAnswer normalizes a raw completion into answer text. Models are
// asked for plain text but sometimes wrap the reply in code fences or a
// JSON object with an "answer" field; both wrappers are peeled here. A
// reply that opens a JSON object it cannot finish is a ParseError, never
// a silent empty answer.
func ParseAnswer(raw string) (ParsedAnswer, *ParseError) {
	text := stripFences(strings.TrimSpace(raw))
	if !strings.HasPrefix(text, "{") {
		return ParsedAnswer{Text: text}, nil
	}

	var obj struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return ParsedAnswer{}, &ParseError{Raw: raw, Cause: err}
	}
	if strings.TrimSpace(obj.Answer) == "" {
		return ParsedAnswer{}, &ParseError{Raw: raw, Cause: fmt.Errorf("object reply missing answer field")}
	}
	return ParsedAnswer{Text: obj.Answer}, nil
}

// stripFences removes a surrounding markdown code fence, with or without
// a language tag.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
