package generator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/clinsim/backend/internal/extract"
	"github.com/clinsim/backend/internal/models"
)

// ConsultationPenalty is deducted from the overall score per consultation.
const ConsultationPenalty = 0.5

// Evaluate grades one attempt. It never returns an error: a backend or parse
// failure produces a zero-score result flagged as degraded.
func (g *Generator) Evaluate(ctx context.Context, req models.EvaluationRequest) models.EvaluationResult {
	if req.Scenario == nil {
		return DegradedResult("no scenario to evaluate against")
	}

	ctx, cancel := context.WithTimeout(ctx, g.longTimeout)
	defer cancel()

	resp, err := g.llm.Generate(ctx, NewRequest(KindEvaluation, EvaluationSystemPrompt(), BuildEvaluationPrompt(req), nil))
	if err != nil {
		g.log.Warn("evaluation backend failed", "scenario_id", req.Scenario.ID, "error", err)
		return DegradedResult(fmt.Sprintf("Evaluation service error: %v", err))
	}

	text, err := extract.ExtractJSON(resp.Content)
	if err != nil {
		g.log.Warn("evaluation JSON could not be extracted", "scenario_id", req.Scenario.ID, "error", err)
		return DegradedResult(fmt.Sprintf("Evaluation could not be read: %v", err))
	}

	result := ParseEvaluation(text, req.Consultations)
	if result.TimeManagement == "" && req.TimeUp {
		result.TimeManagement = "Time ran out before the case was closed."
	}

	g.log.Info("evaluation complete",
		"scenario_id", req.Scenario.ID,
		"score", result.Score,
		"consultations", req.Consultations,
	)
	return result
}

// ParseEvaluation coerces the evaluator's JSON into an EvaluationResult.
// Category scores are clamped into [0,10]. The consultation penalty is taken
// off the raw overall score before clamping and described in
// ConsultationImpact.
func ParseEvaluation(text string, consultations int) models.EvaluationResult {
	root := gjson.Parse(text)

	raw := root.Get("score").Float()
	result := models.EvaluationResult{
		Score:              ApplyConsultationPenalty(raw, consultations),
		Categories:         make([]models.CategoryScore, 0, len(models.EvaluationCategories)),
		IdentifiedMistakes: stringList(root.Get("identified_mistakes")),
		Positives:          stringList(root.Get("explanation.correct_aspects")),
		Negatives:          stringList(root.Get("explanation.mistakes_or_omissions")),
		TimeManagement:     strings.TrimSpace(root.Get("time_management").String()),
	}

	for _, name := range models.EvaluationCategories {
		cat := root.Get("categories." + name)
		cs := models.CategoryScore{Name: name}
		if s := cat.Get("score"); s.Exists() && s.Type != gjson.Null {
			v := Clamp(s.Float())
			cs.Score = &v
		}
		cs.Comments = strings.TrimSpace(cat.Get("comments").String())
		result.Categories = append(result.Categories, cs)
	}

	if consultations > 0 {
		result.ConsultationImpact = fmt.Sprintf(
			"%d consultation(s) used: -%.1f points (%.1f → %.1f).",
			consultations, float64(consultations)*ConsultationPenalty, Clamp(raw), result.Score,
		)
	} else if impact := strings.TrimSpace(root.Get("consultation_impact").String()); impact != "" {
		result.ConsultationImpact = impact
	} else {
		result.ConsultationImpact = "No consultations used."
	}
	return result
}

// ApplyConsultationPenalty deducts ConsultationPenalty per consultation,
// clamps into [0,10], and rounds to one decimal.
func ApplyConsultationPenalty(score float64, consultations int) float64 {
	if consultations > 0 {
		score -= float64(consultations) * ConsultationPenalty
	}
	return math.Round(Clamp(score)*10) / 10
}

// Clamp limits a score to [0,10]. NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 10:
		return 10
	}
	return v
}

// DegradedResult is the zero-score result returned when evaluation failed.
func DegradedResult(reason string) models.EvaluationResult {
	cats := make([]models.CategoryScore, 0, len(models.EvaluationCategories))
	for _, name := range models.EvaluationCategories {
		cats = append(cats, models.CategoryScore{Name: name})
	}
	return models.EvaluationResult{
		Score:              0,
		Categories:         cats,
		IdentifiedMistakes: []string{},
		Positives:          []string{},
		Negatives:          []string{reason},
		Degraded:           true,
	}
}

func stringList(r gjson.Result) []string {
	out := []string{}
	if !r.IsArray() {
		if s := strings.TrimSpace(r.String()); r.Type == gjson.String && s != "" {
			out = append(out, s)
		}
		return out
	}
	for _, item := range r.Array() {
		var s string
		if item.IsObject() {
			s = item.Get("description").String()
		} else {
			s = item.String()
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
