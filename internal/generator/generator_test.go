package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clinsim/backend/internal/extract"
	"github.com/clinsim/backend/internal/models"
)

type fakeLLM struct {
	content  string
	err      error
	requests []Request
}

func (f *fakeLLM) Generate(ctx context.Context, req Request) (*LLMResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &LLMResponse{Content: f.content}, nil
}

var fixedNow = time.Date(2024, 3, 5, 14, 7, 9, 123456789, time.UTC)

func newTestGenerator(llm LLMClient) *Generator {
	return NewGenerator(llm, "test-model", nil, Options{Now: func() time.Time { return fixedNow }})
}

func testScenario() *models.Scenario {
	return &models.Scenario{
		ID:                "case_1",
		Name:              "Chest pain",
		InitialInfo:       "Male, 58, chest pain for 2 hours.",
		Appearance:        "Pale, sweaty, clutching his chest.",
		DiagnosisShort:    "STEMI",
		DiagnosisDetailed: "Acute inferior STEMI.",
		KeyAnamnesis:      []string{"pain radiates to left arm"},
		CorrectPlan:       "ECG, aspirin, PCI.",
		ObjectiveFindings: map[string]string{"heart_rate": "104"},
		CommonMistakes: []models.CommonMistake{
			{ID: models.MistakeEmptyDiagnosis, Description: "No diagnosis", Penalty: 5},
		},
	}
}

func TestGenerateScenario_StampsFreshID(t *testing.T) {
	llm := &fakeLLM{content: "Here you go:\n```json\n{\"id\":\"model_id\",\"name\":\"Case\"\n```"}
	g := newTestGenerator(llm)

	sc, _, err := g.GenerateScenario(context.Background(), Filters{Difficulty: models.DifficultyHard})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.ID != "llm_gen_20240305140709123456" {
		t.Errorf("expected timestamp id, got %q", sc.ID)
	}
	if sc.Name != "Case" {
		t.Errorf("expected name Case, got %q", sc.Name)
	}
	if len(sc.CommonMistakes) != 2 || len(sc.HiddenTriggers) != 0 {
		t.Errorf("expected normalized scenario, got mistakes=%v triggers=%v", sc.CommonMistakes, sc.HiddenTriggers)
	}

	req := llm.requests[0]
	if req.Kind != KindScenario || req.MaxTokens != 5000 || req.Temperature != 0.85 {
		t.Errorf("unexpected request budget: %+v", req)
	}
	if !strings.Contains(req.Prompt, "DIFFICULTY: HARD") {
		t.Error("expected hard difficulty modifiers in prompt")
	}
}

func TestGenerateScenario_AddsMissingID(t *testing.T) {
	g := newTestGenerator(&fakeLLM{content: `{"name": "No id from the model"}`})
	sc, _, err := g.GenerateScenario(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(sc.ID, "llm_gen_") {
		t.Errorf("expected generated id, got %q", sc.ID)
	}
}

func TestGenerateScenario_Failures(t *testing.T) {
	tests := []struct {
		name    string
		llm     *fakeLLM
		wantErr error
		wantRaw string
	}{
		{"backend error", &fakeLLM{err: errors.New("connection refused")}, ErrBackend, ""},
		{"empty output", &fakeLLM{content: "  "}, extract.ErrEmptyResponse, "  "},
		{"prose only", &fakeLLM{content: "Sorry, I cannot."}, extract.ErrNoJSONFound, "Sorry, I cannot."},
	}
	for _, tt := range tests {
		g := newTestGenerator(tt.llm)
		sc, _, err := g.GenerateScenario(context.Background(), Filters{})
		if sc != nil {
			t.Errorf("%s: expected no scenario", tt.name)
		}
		var ge *GenerationError
		if !errors.As(err, &ge) {
			t.Fatalf("%s: expected GenerationError, got %T", tt.name, err)
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: expected %v in chain, got %v", tt.name, tt.wantErr, err)
		}
		if ge.Raw != tt.wantRaw {
			t.Errorf("%s: expected raw %q, got %q", tt.name, tt.wantRaw, ge.Raw)
		}
	}
}

func TestPatientReply(t *testing.T) {
	history := []models.Message{
		{Role: models.RolePatient, Content: "Hello doctor."},
		{Role: models.RoleTrainee, Content: "What brings you in?"},
	}

	llm := &fakeLLM{content: "  My chest hurts.\n"}
	g := newTestGenerator(llm)
	if got := g.PatientReply(context.Background(), history, "You are Ivan."); got != "My chest hurts." {
		t.Errorf("expected trimmed reply, got %q", got)
	}
	req := llm.requests[0]
	if req.System != "You are Ivan." || req.Kind != KindReply || req.MaxTokens != 400 {
		t.Errorf("unexpected request: %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != RoleAssistant || req.Messages[1].Role != RoleUser {
		t.Errorf("unexpected turns: %+v", req.Messages)
	}

	g = newTestGenerator(&fakeLLM{content: "   "})
	if got := g.PatientReply(context.Background(), history, "p"); got != FallbackSilent {
		t.Errorf("expected silent fallback, got %q", got)
	}

	g = newTestGenerator(&fakeLLM{err: errors.New("timeout")})
	if got := g.PatientReply(context.Background(), history, "p"); got != FallbackUnavailable {
		t.Errorf("expected unavailable fallback, got %q", got)
	}
}

func TestConsult(t *testing.T) {
	llm := &fakeLLM{content: "Ask about radiation of the pain.\n"}
	g := newTestGenerator(llm)
	tip := g.Consult(context.Background(), ConsultRequest{Scenario: testScenario()})
	if tip != "Ask about radiation of the pain." {
		t.Errorf("unexpected tip %q", tip)
	}
	if llm.requests[0].MaxTokens != 150 || llm.requests[0].Temperature != 0.5 {
		t.Errorf("unexpected budget: %+v", llm.requests[0])
	}

	g = newTestGenerator(&fakeLLM{err: errors.New("boom")})
	if tip := g.Consult(context.Background(), ConsultRequest{Scenario: testScenario()}); tip != FallbackConsult {
		t.Errorf("expected fallback, got %q", tip)
	}
}

func TestMockClient_FullRoundTrip(t *testing.T) {
	g := newTestGenerator(NewMockClient())

	sc, _, err := g.GenerateScenario(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sc.HiddenTriggers) != 2 || len(sc.Investigations) != 2 {
		t.Errorf("expected mock scenario triggers and investigations, got %d / %d", len(sc.HiddenTriggers), len(sc.Investigations))
	}

	res := g.Evaluate(context.Background(), models.EvaluationRequest{Scenario: sc, Consultations: 1})
	if res.Degraded || res.Score != 6.5 {
		t.Errorf("expected 7 - 0.5 = 6.5, got %+v", res)
	}
}
