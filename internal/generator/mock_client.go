package generator

import (
	"context"
	"fmt"
)

// ── MockClient — Local Development ─────────────────────────

// MockClient returns canned output for each call kind so the whole
// simulator can run without a model.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Generate(ctx context.Context, req Request) (*LLMResponse, error) {
	var content string
	switch req.Kind {
	case KindScenario:
		content = "Here is the case:\n```json\n" + mockScenarioJSON + "\n```"
	case KindReply:
		content = mockReply(len(req.Messages))
	case KindConsult:
		content = "Ask where the pain started and whether it has moved since."
	case KindEvaluation:
		content = mockEvaluationJSON
	default:
		content = "{}"
	}
	return &LLMResponse{Content: content, PromptTokens: 1500, OutputTokens: 600}, nil
}

func mockReply(turns int) string {
	replies := []string{
		"It started around the belly button yesterday evening, doctor, and now it's lower on the right.",
		"I felt sick and threw up once. I don't want to eat anything.",
		"I think I have a fever. The nurse said t 37,9 and pulse 96.",
		"It hurts more when I walk or cough.",
	}
	return fmt.Sprintf("[Mock] %s", replies[turns%len(replies)])
}

const mockScenarioJSON = `{
  "id": "model_generated",
  "name": "[Mock] Right lower quadrant pain",
  "difficulty": "medium",
  "patient_initial_info_display": "Male, 24, abdominal pain since yesterday.",
  "patient_appearance_detailed": "Young man lying still on the couch, knees slightly flexed, pale and sweaty.",
  "objective_findings_on_entry": {"blood_pressure": "125/80", "heart_rate": "96", "temperature": "37.9"},
  "initial_lab_results": {},
  "physical_exam_findings": {"abdomen": "Tenderness and guarding in the right iliac fossa, positive Rovsing sign."},
  "investigations": {
    "cbc": {"request_keywords": ["blood test", "cbc", "blood count"], "result": "WBC 14.2 x10^9/L, neutrophils 82%.", "delay_turns": 1},
    "ultrasound": {"request_keywords": ["ultrasound", "sonography"], "result": "Non-compressible appendix 9 mm with periappendiceal fluid.", "delay_turns": 2}
  },
  "patient_llm_persona_system_prompt": "You are Alex, 24, a courier. Since yesterday evening you have abdominal pain that began around the navel and moved to the lower right. You vomited once. Answer briefly and only what you are asked.",
  "initial_patient_greeting": "Hello doctor... my stomach really hurts.",
  "true_diagnosis_internal": "Acute appendicitis",
  "true_diagnosis_detailed": "Acute phlegmonous appendicitis without perforation.",
  "key_anamnesis_points": ["pain migration from navel to right iliac fossa", "nausea and vomiting", "loss of appetite", "low grade fever"],
  "correct_plan_detailed": "Surgical consultation, CBC, abdominal ultrasound, nil by mouth, IV fluids, laparoscopic appendectomy.",
  "differential_diagnoses": ["Mesenteric lymphadenitis", "Right ureteric colic", "Terminal ileitis"],
  "hidden_triggers": [
    {"id": "reveal_vomit", "condition_type": "keyword", "condition_value": ["nausea", "vomit"], "patient_reveal_info": "Mention that you vomited once last night.", "priority": 1},
    {"id": "anxiety", "condition_type": "message_count", "condition_value": 4, "patient_reveal_info": "Ask anxiously whether you need surgery.", "modify_system_prompt_add": "You are getting worried.", "priority": 0}
  ],
  "common_mistakes": [
    {"id": "empty_dx", "description": "No diagnosis given.", "penalty": 5},
    {"id": "empty_plan", "description": "No plan proposed.", "penalty": 5}
  ],
  "key_diagnostic_questions_keywords": ["where", "when", "vomit", "appetite", "fever"],
  "correct_diagnosis_keywords_for_check": ["appendicitis"],
  "correct_plan_keywords_for_check": ["surgeon", "ultrasound", "appendectomy"]
}`

const mockEvaluationJSON = `{
  "score": 7,
  "categories": {
    "anamnesis": {"score": 7, "comments": "[Mock] Pain migration was clarified; appetite was not asked about."},
    "diagnosis": {"score": 8, "comments": "[Mock] Correct working diagnosis."},
    "plan": {"score": 6, "comments": "[Mock] Surgical referral present, fluids missing."},
    "investigations": {"score": 7, "comments": "[Mock] Appropriate tests."},
    "clinical_reasoning": {"score": 7, "comments": "[Mock] Differentials considered briefly."}
  },
  "identified_mistakes": [],
  "explanation": {
    "correct_aspects": ["[Mock] Asked about the onset and migration of pain."],
    "mistakes_or_omissions": ["[Mock] Did not ask about appetite."]
  },
  "time_management": "[Mock] Reasonable pace.",
  "consultation_impact": ""
}`
