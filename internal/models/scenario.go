package models

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

var ValidDifficulties = map[Difficulty]bool{
	DifficultyEasy:   true,
	DifficultyMedium: true,
	DifficultyHard:   true,
}

// ── Scenario ────────────────────────────────────────────

// Scenario is the authoritative description of one clinical case. It is only
// ever constructed by scenario.Normalize, so every field is populated.
type Scenario struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Difficulty        Difficulty        `json:"difficulty"`
	InitialInfo       string            `json:"patient_initial_info_display"`
	Appearance        string            `json:"patient_appearance_detailed"`
	PersonaPrompt     string            `json:"patient_llm_persona_system_prompt"`
	Greeting          string            `json:"initial_patient_greeting"`
	DiagnosisShort    string            `json:"true_diagnosis_internal"`
	DiagnosisDetailed string            `json:"true_diagnosis_detailed"`
	KeyAnamnesis      []string          `json:"key_anamnesis_points"`
	CorrectPlan       string            `json:"correct_plan_detailed"`
	Differentials     []string          `json:"differential_diagnoses"`
	ObjectiveFindings map[string]string `json:"objective_findings_on_entry"`
	InitialLabResults map[string]any    `json:"initial_lab_results"`
	PhysicalExam      map[string]string `json:"physical_exam_findings"`

	Investigations map[string]Investigation `json:"investigations"`
	CommonMistakes []CommonMistake          `json:"common_mistakes"`
	HiddenTriggers []HiddenTrigger          `json:"hidden_triggers"`

	DiagnosticQuestionKeywords []string `json:"key_diagnostic_questions_keywords"`
	DiagnosisKeywords          []string `json:"correct_diagnosis_keywords_for_check"`
	PlanKeywords               []string `json:"correct_plan_keywords_for_check"`
}

// Investigation is a virtual lab or imaging order. Its result is delivered
// DelayTurns trainee messages after it was requested.
type Investigation struct {
	RequestKeywords []string `json:"request_keywords"`
	Result          string   `json:"result"`
	DelayTurns      int      `json:"delay_turns"`
}

const (
	MistakeEmptyDiagnosis = "empty_dx"
	MistakeEmptyPlan      = "empty_plan"
)

type CommonMistake struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Penalty     int    `json:"penalty"`
}

// ── Hidden Triggers ─────────────────────────────────────

type TriggerCondition string

const (
	// ConditionKeyword fires when a keyword appears in the trainee's message.
	ConditionKeyword TriggerCondition = "keyword"
	// ConditionMessageCount fires once the trainee has sent Threshold messages.
	ConditionMessageCount TriggerCondition = "message_count"
	// ConditionAfterPatientKeyword fires when a keyword appeared in the
	// patient's previous reply.
	ConditionAfterPatientKeyword TriggerCondition = "after_llm_keyword"
)

type HiddenTrigger struct {
	ID             string           `json:"id"`
	Condition      TriggerCondition `json:"condition_type"`
	Keywords       []string         `json:"keywords,omitempty"`
	Threshold      int              `json:"threshold,omitempty"`
	RevealText     string           `json:"patient_reveal_info"`
	PromptAddendum string           `json:"modify_system_prompt_add"`
	Priority       int              `json:"priority"`
	Fired          bool             `json:"triggered_once"`
}

// Clone returns a deep copy so per-session mutation (trigger flags) never
// leaks back into a catalog entry.
func (s *Scenario) Clone() *Scenario {
	if s == nil {
		return nil
	}
	c := *s
	c.KeyAnamnesis = append([]string(nil), s.KeyAnamnesis...)
	c.Differentials = append([]string(nil), s.Differentials...)
	c.DiagnosticQuestionKeywords = append([]string(nil), s.DiagnosticQuestionKeywords...)
	c.DiagnosisKeywords = append([]string(nil), s.DiagnosisKeywords...)
	c.PlanKeywords = append([]string(nil), s.PlanKeywords...)
	c.ObjectiveFindings = cloneStringMap(s.ObjectiveFindings)
	c.PhysicalExam = cloneStringMap(s.PhysicalExam)

	c.InitialLabResults = make(map[string]any, len(s.InitialLabResults))
	for k, v := range s.InitialLabResults {
		c.InitialLabResults[k] = v
	}

	c.Investigations = make(map[string]Investigation, len(s.Investigations))
	for k, inv := range s.Investigations {
		inv.RequestKeywords = append([]string(nil), inv.RequestKeywords...)
		c.Investigations[k] = inv
	}

	c.CommonMistakes = append([]CommonMistake(nil), s.CommonMistakes...)
	c.HiddenTriggers = make([]HiddenTrigger, len(s.HiddenTriggers))
	for i, t := range s.HiddenTriggers {
		t.Keywords = append([]string(nil), t.Keywords...)
		c.HiddenTriggers[i] = t
	}
	return &c
}

// PenaltyTotal sums the penalties of all common mistakes.
func (s *Scenario) PenaltyTotal() int {
	total := 0
	for _, m := range s.CommonMistakes {
		total += m.Penalty
	}
	return total
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ScenarioSummary is the list view of a predefined scenario. It never carries
// the diagnosis.
type ScenarioSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Difficulty  Difficulty `json:"difficulty"`
	InitialInfo string     `json:"patient_initial_info_display"`
}

func (s *Scenario) Summary() ScenarioSummary {
	return ScenarioSummary{ID: s.ID, Name: s.Name, Difficulty: s.Difficulty, InitialInfo: s.InitialInfo}
}
