package extract

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestExtract_WellFormed(t *testing.T) {
	want := map[string]any{
		"id":   "case_1",
		"name": "Chest pain",
		"tags": []any{"a", "b"},
		"meta": map[string]any{"turns": float64(3)},
	}
	body := `{"id":"case_1","name":"Chest pain","tags":["a","b"],"meta":{"turns":3}}`

	inputs := map[string]string{
		"bare":           body,
		"fenced":         "```json\n" + body + "\n```",
		"fenced upper":   "```JSON\n" + body + "\n```",
		"prose around":   "Sure! Here is the scenario:\n" + body + "\nLet me know if you need more.",
		"fenced + prose": "Here you go:\n```json\n" + body + "\n```\nEnjoy.",
	}

	for name, input := range inputs {
		got, err := Extract(input)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: got %v, want %v", name, got, want)
		}
	}
}

func TestExtract_MissingTrailingBrace(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]any
	}{
		{
			name:  "fenced flat object",
			input: "Here you go:\n```json\n{\"id\":\"x\",\"name\":\"Case\"\n```",
			want:  map[string]any{"id": "x", "name": "Case"},
		},
		{
			name:  "nested object",
			input: `result: {"a":{"b":1}`,
			want:  map[string]any{"a": map[string]any{"b": float64(1)}},
		},
		{
			name:  "no closing brace at all",
			input: `{"id":"x","n":2`,
			want:  map[string]any{"id": "x", "n": float64(2)},
		},
	}

	for _, tt := range tests {
		got, err := Extract(tt.input)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestExtract_Errors(t *testing.T) {
	if _, err := Extract("   \n\t "); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("whitespace: expected ErrEmptyResponse, got %v", err)
	}
	if _, err := Extract("I could not produce a scenario, sorry."); !errors.Is(err, ErrNoJSONFound) {
		t.Errorf("prose: expected ErrNoJSONFound, got %v", err)
	}

	_, err := Extract(`{"id": "x", "name": [1, 2 "oops" :: }`)
	var ue *UnrecoverableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnrecoverableError, got %T (%v)", err, err)
	}
	if ue.Msg == "" {
		t.Error("expected original parse error message to be kept")
	}
}

func TestExtract_RepairsAppliedToOriginalCandidate(t *testing.T) {
	// Unquoted key: fixed by the first strategy.
	got, err := Extract(`{"id": "x", name": "Case"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["name"] != "Case" {
		t.Errorf("expected name Case, got %v", got["name"])
	}

	// Extra closing brace after a complete object: brace balancing.
	got, err = Extract("```json\n{\"id\": \"x\", \"n\": {\"k\": 1}}\n}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["id"] != "x" {
		t.Errorf("expected id x, got %v", got["id"])
	}

	// Mistake entry missing its description key.
	got, err = Extract(`{"common_mistakes": [{"id": "no_ecg", "Did not order an ECG", "penalty": 2}]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items := got["common_mistakes"].([]any)
	item := items[0].(map[string]any)
	if item["description"] != "Did not order an ECG" {
		t.Errorf("expected description to be restored, got %v", item)
	}
}

func TestExtractJSON_ReturnsRepairedText(t *testing.T) {
	text, err := ExtractJSON(`noise {"score": 7, "explanation": {"correct_aspects": ["x"]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(text, "}}") {
		t.Errorf("expected suffix completion, got %q", text)
	}
}

func TestCandidate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"text {\"a\":1} text", `{"a":1}`},
		{"{\"a\":{\"b\":2}} tail }", `{"a":{"b":2}} tail }`},
		{"prefix {\"a\":1", `{"a":1`},
	}
	for _, tt := range tests {
		got, err := Candidate(tt.input)
		if err != nil {
			t.Fatalf("Candidate(%q): unexpected error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("Candidate(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
