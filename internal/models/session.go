package models

import "time"

type Role string

const (
	RolePatient Role = "patient"
	RoleTrainee Role = "trainee"
)

// Message is one line of the consultation dialogue. Turn is the trainee
// message count at the time the message was appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Turn      int       `json:"turn"`
	CreatedAt time.Time `json:"created_at"`
}

// ── Evaluation ──────────────────────────────────────────

const (
	CategoryAnamnesis      = "anamnesis"
	CategoryDiagnosis      = "diagnosis"
	CategoryPlan           = "plan"
	CategoryInvestigations = "investigations"
	CategoryReasoning      = "clinical_reasoning"
)

// EvaluationCategories is the fixed display order of evaluation categories.
var EvaluationCategories = []string{
	CategoryAnamnesis,
	CategoryDiagnosis,
	CategoryPlan,
	CategoryInvestigations,
	CategoryReasoning,
}

type CategoryScore struct {
	Name     string   `json:"name"`
	Score    *float64 `json:"score"` // nil when the category does not apply
	Comments string   `json:"comments"`
}

type EvaluationResult struct {
	Score              float64         `json:"score"`
	Categories         []CategoryScore `json:"categories"`
	IdentifiedMistakes []string        `json:"identified_mistakes"`
	Positives          []string        `json:"positives"`
	Negatives          []string        `json:"negatives"`
	TimeManagement     string          `json:"time_management"`
	ConsultationImpact string          `json:"consultation_impact"`
	Degraded           bool            `json:"degraded"`
}

// HasMistake reports whether id is among the identified mistakes.
func (r *EvaluationResult) HasMistake(id string) bool {
	for _, m := range r.IdentifiedMistakes {
		if m == id {
			return true
		}
	}
	return false
}

// EvaluationRequest is everything the evaluator sees about one attempt.
type EvaluationRequest struct {
	Scenario      *Scenario
	Dialogue      []Message
	Differential  string
	Diagnosis     string
	Plan          string
	Consultations int
	Elapsed       time.Duration
	TimerLimit    time.Duration // zero when no timer was set
	TimeUp        bool
}

// ── History ─────────────────────────────────────────────

// HistoryRecord is one finished attempt, kept for display only.
type HistoryRecord struct {
	ScenarioName      string     `json:"scenario_name"`
	Score             float64    `json:"score"`
	Difficulty        Difficulty `json:"difficulty"`
	Timestamp         time.Time  `json:"timestamp"`
	ElapsedDisplay    string     `json:"elapsed"`
	TimerActive       bool       `json:"timer_active"`
	ConsultationsUsed int        `json:"consultations_used"`
}

// ── Preferences ─────────────────────────────────────────

// Preferences survive a workspace reset.
type Preferences struct {
	AgeRange       string     `json:"age_range"`
	Gender         string     `json:"gender"`
	Specialization string     `json:"specialization"`
	Difficulty     Difficulty `json:"difficulty"`
	StartWithHints bool       `json:"start_with_hints"`
	TimerMinutes   int        `json:"timer_minutes"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		AgeRange:       AnyOption,
		Gender:         AnyOption,
		Specialization: AnyOption,
		Difficulty:     DifficultyEasy,
	}
}
