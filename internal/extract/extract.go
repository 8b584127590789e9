// Package extract pulls a JSON object out of free-form language model output
// and repairs the malformations those models commonly produce.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrEmptyResponse = errors.New("model response is empty")
	ErrNoJSONFound   = errors.New("no JSON object found in model response")
)

// UnrecoverableError is returned when the candidate did not parse and no
// repair strategy could fix it. Msg is the original parse error.
type UnrecoverableError struct {
	Msg string
	Err error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("unrecoverable JSON: %s", e.Msg)
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

var jsonFence = regexp.MustCompile("(?is)```json\\s*(.*?)\\s*```")

// Extract returns the JSON object embedded in raw.
func Extract(raw string) (map[string]any, error) {
	_, obj, err := extract(raw)
	return obj, err
}

// ExtractJSON is like Extract but returns the (possibly repaired) JSON text,
// for callers that read it with path queries instead of decoding it.
func ExtractJSON(raw string) (string, error) {
	text, _, err := extract(raw)
	return text, err
}

func extract(raw string) (string, map[string]any, error) {
	candidate, err := Candidate(raw)
	if err != nil {
		return "", nil, err
	}

	obj, parseErr := decodeObject(candidate)
	if parseErr == nil {
		return candidate, obj, nil
	}

	// Every strategy sees the original candidate, never another strategy's output.
	for _, r := range Repairs {
		fixed, ok := r.Apply(candidate)
		if !ok {
			continue
		}
		if obj, err := decodeObject(fixed); err == nil {
			return fixed, obj, nil
		}
	}

	return "", nil, &UnrecoverableError{Msg: parseErr.Error(), Err: parseErr}
}

// Candidate locates the substring that should hold the JSON object: the body
// of a ```json fence if there is one, otherwise everything from the first '{'
// to the last '}'. Output cut off before any closing brace yields the text
// from the first '{' to the end.
func Candidate(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrEmptyResponse
	}

	if m := jsonFence.FindStringSubmatch(text); m != nil {
		if body := strings.TrimSpace(m[1]); body != "" {
			return body, nil
		}
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSONFound
	}
	end := strings.LastIndexByte(text, '}')
	if end > start {
		return strings.TrimSpace(text[start : end+1]), nil
	}
	return strings.TrimSpace(text[start:]), nil
}

func decodeObject(s string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("JSON value is not an object")
	}
	return obj, nil
}
