// Package scenario turns untrusted scenario objects, whether hand-authored or
// produced by a language model, into fully populated models.Scenario values.
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/clinsim/backend/internal/models"
)

var ErrCriticalFieldMissing = errors.New("critical scenario field missing")

type CriticalFieldMissingError struct {
	Field string
}

func (e *CriticalFieldMissingError) Error() string {
	return fmt.Sprintf("critical scenario field missing: %q", e.Field)
}

func (e *CriticalFieldMissingError) Unwrap() error { return ErrCriticalFieldMissing }

type fieldKind int

const (
	kindString fieldKind = iota
	kindStringList
	kindStringMap
	kindObject
	kindList
)

type field struct {
	key      string
	kind     fieldKind
	def      any // nil means the field is mandatory
	required bool
}

// schema is the declared type and default of every top-level field.
var schema = []field{
	{key: "id", kind: kindString, required: true},
	{key: "name", kind: kindString, def: "Untitled case"},
	{key: "difficulty", kind: kindString, def: string(models.DifficultyMedium)},
	{key: "patient_initial_info_display", kind: kindString, def: "No data."},
	{key: "patient_appearance_detailed", kind: kindString, def: "Appearance not described."},
	{key: "patient_llm_persona_system_prompt", kind: kindString, def: "You are a patient."},
	{key: "initial_patient_greeting", kind: kindString, def: "Hello."},
	{key: "true_diagnosis_internal", kind: kindString, def: "N/A"},
	{key: "true_diagnosis_detailed", kind: kindString, def: "N/A"},
	{key: "key_anamnesis_points", kind: kindStringList, def: []string{}},
	{key: "correct_plan_detailed", kind: kindString, def: "N/A"},
	{key: "differential_diagnoses", kind: kindStringList, def: []string{}},
	{key: "objective_findings_on_entry", kind: kindStringMap, def: map[string]string{}},
	{key: "initial_lab_results", kind: kindObject, def: map[string]any{}},
	{key: "physical_exam_findings", kind: kindStringMap, def: map[string]string{}},
	{key: "investigations", kind: kindObject, def: map[string]any{}},
	{key: "hidden_triggers", kind: kindList, def: []any{}},
	{key: "common_mistakes", kind: kindList, def: []any{}},
	{key: "key_diagnostic_questions_keywords", kind: kindStringList, def: []string{}},
	{key: "correct_diagnosis_keywords_for_check", kind: kindStringList, def: []string{}},
	{key: "correct_plan_keywords_for_check", kind: kindStringList, def: []string{}},
}

// MandatoryMistakes are present in every normalized scenario.
var MandatoryMistakes = []models.CommonMistake{
	{ID: models.MistakeEmptyDiagnosis, Description: "No diagnosis was given.", Penalty: 5},
	{ID: models.MistakeEmptyPlan, Description: "No management plan was proposed.", Penalty: 5},
}

// PenaltyBudget is the expected sum of all common-mistake penalties. It is
// advisory: a different sum only produces a warning.
const PenaltyBudget = 10

var difficultyAliases = map[string]models.Difficulty{
	"easy":    models.DifficultyEasy,
	"легкий":  models.DifficultyEasy,
	"лёгкий":  models.DifficultyEasy,
	"medium":  models.DifficultyMedium,
	"средний": models.DifficultyMedium,
	"hard":    models.DifficultyHard,
	"тяжелый": models.DifficultyHard,
	"тяжёлый": models.DifficultyHard,
}

// Normalize fills missing fields with defaults, coerces mistyped ones, and
// enforces trigger and common-mistake invariants. The returned warnings are
// non-fatal findings worth surfacing to an operator.
func Normalize(candidate map[string]any) (*models.Scenario, []string, error) {
	values := make(map[string]any, len(schema))
	var warnings []string

	for _, f := range schema {
		raw, present := candidate[f.key]
		if !present || raw == nil {
			if f.required {
				return nil, warnings, &CriticalFieldMissingError{Field: f.key}
			}
			values[f.key] = f.def
			continue
		}
		v, ok := coerce(f.kind, raw)
		if !ok {
			if f.required {
				return nil, warnings, &CriticalFieldMissingError{Field: f.key}
			}
			warnings = append(warnings, fmt.Sprintf("field %q has unexpected type %T, using default", f.key, raw))
			v = f.def
		}
		values[f.key] = v
	}

	id := strings.TrimSpace(values["id"].(string))
	if id == "" {
		return nil, warnings, &CriticalFieldMissingError{Field: "id"}
	}

	sc := &models.Scenario{
		ID:                         id,
		Name:                       values["name"].(string),
		Difficulty:                 ParseDifficulty(values["difficulty"].(string)),
		InitialInfo:                values["patient_initial_info_display"].(string),
		Appearance:                 values["patient_appearance_detailed"].(string),
		PersonaPrompt:              values["patient_llm_persona_system_prompt"].(string),
		Greeting:                   values["initial_patient_greeting"].(string),
		DiagnosisShort:             values["true_diagnosis_internal"].(string),
		DiagnosisDetailed:          values["true_diagnosis_detailed"].(string),
		KeyAnamnesis:               values["key_anamnesis_points"].([]string),
		CorrectPlan:                values["correct_plan_detailed"].(string),
		Differentials:              values["differential_diagnoses"].([]string),
		ObjectiveFindings:          values["objective_findings_on_entry"].(map[string]string),
		InitialLabResults:          values["initial_lab_results"].(map[string]any),
		PhysicalExam:               values["physical_exam_findings"].(map[string]string),
		DiagnosticQuestionKeywords: values["key_diagnostic_questions_keywords"].([]string),
		DiagnosisKeywords:          values["correct_diagnosis_keywords_for_check"].([]string),
		PlanKeywords:               values["correct_plan_keywords_for_check"].([]string),
	}

	var dropped []string
	sc.HiddenTriggers, dropped = normalizeTriggers(values["hidden_triggers"].([]any))
	for _, d := range dropped {
		warnings = append(warnings, "dropped hidden trigger: "+d)
	}

	sc.Investigations, dropped = normalizeInvestigations(values["investigations"].(map[string]any))
	for _, d := range dropped {
		warnings = append(warnings, "dropped investigation: "+d)
	}

	sc.CommonMistakes = normalizeMistakes(values["common_mistakes"].([]any))
	if total := sc.PenaltyTotal(); total != PenaltyBudget {
		warnings = append(warnings, fmt.Sprintf("common_mistakes penalties sum to %d, expected %d", total, PenaltyBudget))
	}

	return sc, warnings, nil
}

// ParseDifficulty maps English and Russian difficulty labels onto the enum,
// falling back to medium.
func ParseDifficulty(s string) models.Difficulty {
	if d, ok := difficultyAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d
	}
	return models.DifficultyMedium
}

// ── Hidden triggers ─────────────────────────────────────

func normalizeTriggers(items []any) ([]models.HiddenTrigger, []string) {
	triggers := []models.HiddenTrigger{}
	var dropped []string

	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			dropped = append(dropped, fmt.Sprintf("#%d is not an object", i))
			continue
		}
		missing := ""
		for _, k := range []string{"id", "condition_type", "condition_value", "patient_reveal_info"} {
			if _, ok := obj[k]; !ok {
				missing = k
				break
			}
		}
		if missing != "" {
			dropped = append(dropped, fmt.Sprintf("#%d lacks %q", i, missing))
			continue
		}

		t := models.HiddenTrigger{
			ID:         stringify(obj["id"]),
			Condition:  models.TriggerCondition(stringify(obj["condition_type"])),
			RevealText: stringify(obj["patient_reveal_info"]),
		}

		switch t.Condition {
		case models.ConditionKeyword, models.ConditionAfterPatientKeyword:
			kws, ok := strictStringList(obj["condition_value"])
			if !ok {
				dropped = append(dropped, fmt.Sprintf("%s: condition_value must be a list of strings", t.ID))
				continue
			}
			t.Keywords = kws
		case models.ConditionMessageCount:
			n, ok := integer(obj["condition_value"])
			if !ok {
				dropped = append(dropped, fmt.Sprintf("%s: condition_value must be an integer", t.ID))
				continue
			}
			t.Threshold = n
		default:
			dropped = append(dropped, fmt.Sprintf("%s: unknown condition_type %q", t.ID, t.Condition))
			continue
		}

		if p, ok := integer(obj["priority"]); ok {
			t.Priority = p
		}
		if add, ok := obj["modify_system_prompt_add"]; ok && add != nil {
			t.PromptAddendum = stringify(add)
		}
		t.Fired = false
		triggers = append(triggers, t)
	}
	return triggers, dropped
}

// ── Investigations ──────────────────────────────────────

func normalizeInvestigations(items map[string]any) (map[string]models.Investigation, []string) {
	out := make(map[string]models.Investigation, len(items))
	var dropped []string

	for name, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			dropped = append(dropped, fmt.Sprintf("%s is not an object", name))
			continue
		}
		kws, _ := coerceStringList(obj["request_keywords"])
		result := ""
		if r, ok := obj["result"]; ok && r != nil {
			result = strings.TrimSpace(stringify(r))
		}
		if len(kws) == 0 || result == "" {
			dropped = append(dropped, fmt.Sprintf("%s needs request_keywords and a result", name))
			continue
		}
		delay, _ := integer(obj["delay_turns"])
		if delay < 0 {
			delay = 0
		}
		out[name] = models.Investigation{RequestKeywords: kws, Result: result, DelayTurns: delay}
	}
	return out, dropped
}

// ── Common mistakes ─────────────────────────────────────

func normalizeMistakes(items []any) []models.CommonMistake {
	var supplied []models.CommonMistake
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := obj["id"].(string)
		if !ok || strings.TrimSpace(id) == "" {
			continue
		}
		m := models.CommonMistake{ID: strings.TrimSpace(id)}
		if d, ok := obj["description"]; ok && d != nil {
			m.Description = stringify(d)
		}
		m.Penalty, _ = integer(obj["penalty"])
		supplied = append(supplied, m)
	}

	final := make([]models.CommonMistake, 0, len(supplied)+len(MandatoryMistakes))
	seen := make(map[string]bool)

	for _, canonical := range MandatoryMistakes {
		chosen := canonical
		for _, m := range supplied {
			if m.ID == canonical.ID && m.Penalty == canonical.Penalty {
				chosen = m
				if chosen.Description == "" {
					chosen.Description = canonical.Description
				}
				break
			}
		}
		final = append(final, chosen)
		seen[canonical.ID] = true
	}

	for _, m := range supplied {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		final = append(final, m)
	}
	return final
}

// ── Coercion helpers ────────────────────────────────────

func coerce(kind fieldKind, raw any) (any, bool) {
	switch kind {
	case kindString:
		return stringify(raw), true
	case kindStringList:
		return coerceStringList(raw)
	case kindStringMap:
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, false
		}
		out := make(map[string]string, len(obj))
		for k, v := range obj {
			out[k] = stringify(v)
		}
		return out, true
	case kindObject:
		obj, ok := raw.(map[string]any)
		return obj, ok
	case kindList:
		list, ok := raw.([]any)
		return list, ok
	}
	return nil, false
}

func coerceStringList(raw any) ([]string, bool) {
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		switch item.(type) {
		case map[string]any, []any, nil:
			continue
		}
		out = append(out, stringify(item))
	}
	return out, true
}

func strictStringList(raw any) ([]string, bool) {
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func integer(raw any) (int, bool) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
