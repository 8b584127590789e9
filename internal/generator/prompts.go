package generator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clinsim/backend/internal/models"
)

// Filters constrain scenario generation. models.AnyOption leaves a field open.
type Filters struct {
	AgeRange       string
	Gender         string
	Specialization string
	Difficulty     models.Difficulty
}

// FiltersFrom reads the generation filters out of trainee preferences.
func FiltersFrom(p models.Preferences) Filters {
	return Filters{
		AgeRange:       p.AgeRange,
		Gender:         p.Gender,
		Specialization: p.Specialization,
		Difficulty:     p.Difficulty,
	}
}

var difficultyModifiers = map[models.Difficulty]string{
	models.DifficultyEasy: `
DIFFICULTY: EASY
- Classic, textbook presentation of a common condition
- The patient is cooperative, articulate and volunteers the key complaint
- No confounding comorbidities; at most one hidden trigger
- Differential diagnosis is narrow`,

	models.DifficultyMedium: `
DIFFICULTY: MEDIUM
- Mostly typical presentation with one or two atypical features
- The patient answers what is asked but does not volunteer important details
- One relevant comorbidity or medication that matters for the plan
- At least one plausible differential the trainee must rule out`,

	models.DifficultyHard: `
DIFFICULTY: HARD
- Atypical or evolving presentation, possibly of a less common condition
- The patient is anxious, vague or minimizes symptoms; some details are misleading
- Several comorbidities interacting with diagnosis and treatment
- Two hidden triggers that reveal critical information only when the right questions are asked
- Several close differentials`,
}

// ── Scenario generation ─────────────────────────────────────

func ScenarioSystemPrompt() string {
	return `You are an experienced clinical educator who writes virtual patient cases for training junior doctors.
Cases must be medically accurate, internally consistent, and playable as a dialogue: the patient persona only knows what a real patient would know, and the diagnosis is never stated to the trainee.
Respond with a single JSON object and nothing else.`
}

// BuildScenarioPrompt embeds the trainee's filters and the difficulty
// modifiers into the generation instruction.
func BuildScenarioPrompt(f Filters) string {
	var b strings.Builder

	b.WriteString("Create one new clinical case for a virtual patient simulator.\n\n")

	b.WriteString("REQUIREMENTS:\n")
	if r, ok := models.FindAgeRange(f.AgeRange); ok {
		fmt.Fprintf(&b, "- Patient age: %d-%d years.\n", r.Min, r.Max)
	} else {
		b.WriteString("- Patient age: your choice.\n")
	}
	if f.Gender != "" && f.Gender != models.AnyOption {
		fmt.Fprintf(&b, "- Patient sex: %s.\n", f.Gender)
	} else {
		b.WriteString("- Patient sex: your choice.\n")
	}
	if f.Specialization != "" && f.Specialization != models.AnyOption {
		fmt.Fprintf(&b, "- Specialty: %s.\n", f.Specialization)
	} else {
		b.WriteString("- Specialty: any common outpatient or emergency condition.\n")
	}

	difficulty := f.Difficulty
	if !models.ValidDifficulties[difficulty] {
		difficulty = models.DifficultyMedium
	}
	fmt.Fprintf(&b, "- Set \"difficulty\" to %q.\n", difficulty)
	b.WriteString(difficultyModifiers[difficulty])
	b.WriteString("\n\n")

	b.WriteString(scenarioSchema)
	return b.String()
}

const scenarioSchema = `OUTPUT FORMAT (strict JSON, no comments, no trailing commas):
{
  "id": "any",
  "name": "short case title",
  "difficulty": "easy|medium|hard",
  "patient_initial_info_display": "what the trainee sees before talking: age, sex, chief complaint",
  "patient_appearance_detailed": "detailed appearance on entry",
  "objective_findings_on_entry": {"blood_pressure": "120/80 or 'not measured'", "heart_rate": "...", "temperature": "...", "spo2": "..."},
  "initial_lab_results": {"CBC": {...}} or {},
  "physical_exam_findings": {"system": "finding reported when the trainee examines it"},
  "investigations": {"name": {"request_keywords": ["words the trainee would use to order it"], "result": "result text", "delay_turns": 0-3}},
  "patient_llm_persona_system_prompt": "detailed instructions for playing the patient: history, personality, what to reveal only when asked, how to report physical examination results on request",
  "initial_patient_greeting": "the patient's first line",
  "true_diagnosis_internal": "short diagnosis",
  "true_diagnosis_detailed": "full diagnosis with stage and complications",
  "key_anamnesis_points": ["facts a competent history must uncover"],
  "correct_plan_detailed": "investigations and management",
  "differential_diagnoses": ["..."],
  "hidden_triggers": [
    {"id": "id", "condition_type": "keyword|message_count|after_llm_keyword", "condition_value": ["words"] or an integer for message_count, "patient_reveal_info": "what the patient reveals", "modify_system_prompt_add": "optional persona change", "priority": 0}
  ],
  "common_mistakes": [
    {"id": "empty_dx", "description": "No diagnosis given.", "penalty": 5},
    {"id": "empty_plan", "description": "No plan proposed.", "penalty": 5}
  ],
  "key_diagnostic_questions_keywords": ["..."],
  "correct_diagnosis_keywords_for_check": ["..."],
  "correct_plan_keywords_for_check": ["..."]
}
Use 0-2 hidden triggers. condition_value must be a list of strings for keyword and after_llm_keyword triggers and an integer for message_count. Common mistake penalties must sum to 10.`

// ── Consultation ────────────────────────────────────────────

// ConsultRequest is what the senior colleague sees.
type ConsultRequest struct {
	Scenario  *models.Scenario
	Dialogue  []models.Message
	Diagnosis string
	Plan      string
}

func BuildConsultPrompt(req ConsultRequest) string {
	var b strings.Builder
	b.WriteString("You are an experienced attending physician. A junior colleague asks you for advice during a consultation.\n\n")
	fmt.Fprintf(&b, "Case: %s\n", req.Scenario.InitialInfo)
	fmt.Fprintf(&b, "Appearance: %s\n", req.Scenario.Appearance)
	fmt.Fprintf(&b, "(For you only, do not reveal: %s)\n\n", req.Scenario.DiagnosisShort)
	b.WriteString("Dialogue so far:\n")
	writeDialogue(&b, req.Dialogue)
	fmt.Fprintf(&b, "\nTrainee's diagnosis: %s\n", orMissing(req.Diagnosis, "[not given]"))
	fmt.Fprintf(&b, "Trainee's plan: %s\n\n", orMissing(req.Plan, "[not given]"))
	b.WriteString("TASK: Give ONE short, concrete tactical tip. Do not name the diagnosis. Example: \"Ask where the pain radiates.\"")
	return b.String()
}

// ── Evaluation ──────────────────────────────────────────────

func EvaluationSystemPrompt() string {
	return `You are a senior medical educator grading a trainee's virtual patient consultation.
Be fair and specific. Grade against the reference answer but credit reasonable alternatives.
Respond with a single JSON object and nothing else.`
}

func BuildEvaluationPrompt(req models.EvaluationRequest) string {
	sc := req.Scenario
	var b strings.Builder

	b.WriteString("CASE (reference, not shown to the trainee):\n")
	fmt.Fprintf(&b, "Case: %s\n", sc.Name)
	fmt.Fprintf(&b, "Initial information: %s\n", sc.InitialInfo)
	fmt.Fprintf(&b, "Appearance: %s\n", sc.Appearance)
	if len(sc.ObjectiveFindings) > 0 {
		fmt.Fprintf(&b, "Findings on entry: %s\n", sortedFindings(sc.ObjectiveFindings))
	}
	fmt.Fprintf(&b, "True diagnosis: %s\n", sc.DiagnosisDetailed)
	fmt.Fprintf(&b, "Key history points: %s\n", strings.Join(sc.KeyAnamnesis, ", "))
	fmt.Fprintf(&b, "Correct plan: %s\n", sc.CorrectPlan)
	if len(sc.Differentials) > 0 {
		fmt.Fprintf(&b, "Differentials: %s\n", strings.Join(sc.Differentials, ", "))
	}
	if len(sc.CommonMistakes) > 0 {
		b.WriteString("Known mistakes (id: description):\n")
		for _, m := range sc.CommonMistakes {
			fmt.Fprintf(&b, "- %s: %s\n", m.ID, m.Description)
		}
	}

	b.WriteString("\nTRAINEE'S WORK:\nDialogue:\n")
	writeDialogue(&b, req.Dialogue)
	fmt.Fprintf(&b, "\nDifferential diagnosis: %s\n", orMissing(req.Differential, "[Missing]"))
	fmt.Fprintf(&b, "Final diagnosis: %s\n", orMissing(req.Diagnosis, "[Missing]"))
	fmt.Fprintf(&b, "Investigation and treatment plan: %s\n", orMissing(req.Plan, "[Missing]"))
	fmt.Fprintf(&b, "Consultations requested: %d\n", req.Consultations)
	fmt.Fprintf(&b, "Time spent: %s", FormatElapsed(req.Elapsed))
	if req.TimerLimit > 0 {
		fmt.Fprintf(&b, " of %s allowed", FormatElapsed(req.TimerLimit))
		if req.TimeUp {
			b.WriteString(" (time ran out)")
		}
	}
	b.WriteString("\n\n")

	b.WriteString(`OUTPUT FORMAT:
{
  "score": 0-10,
  "categories": {
    "anamnesis": {"score": 0-10, "comments": "..."},
    "diagnosis": {"score": 0-10, "comments": "..."},
    "plan": {"score": 0-10, "comments": "..."},
    "investigations": {"score": 0-10 or null if not applicable, "comments": "..."},
    "clinical_reasoning": {"score": 0-10, "comments": "..."}
  },
  "identified_mistakes": ["ids from the known mistakes list that the trainee made"],
  "explanation": {"correct_aspects": ["..."], "mistakes_or_omissions": ["..."]},
  "time_management": "one sentence",
  "consultation_impact": "one sentence"
}
Do not deduct points for consultations yourself; that is applied separately.`)
	return b.String()
}

// ── Helpers ─────────────────────────────────────────────────

// ReplyTurns maps the dialogue onto chat turns: trainee lines are user
// turns, patient lines assistant turns.
func ReplyTurns(history []models.Message) []Turn {
	turns := make([]Turn, 0, len(history))
	for _, m := range history {
		role := RoleUser
		if m.Role == models.RolePatient {
			role = RoleAssistant
		}
		turns = append(turns, Turn{Role: role, Content: m.Content})
	}
	return turns
}

func writeDialogue(b *strings.Builder, dialogue []models.Message) {
	if len(dialogue) == 0 {
		b.WriteString("[no dialogue]\n")
		return
	}
	for _, m := range dialogue {
		if m.Role == models.RoleTrainee {
			b.WriteString("Doctor: ")
		} else {
			b.WriteString("Patient: ")
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
}

func orMissing(s, placeholder string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}

// FormatElapsed renders a duration as mm:ss.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// sortedFindings renders a string map deterministically.
func sortedFindings(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+m[k])
	}
	return strings.Join(parts, "; ")
}
