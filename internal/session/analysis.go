package session

import (
	"strings"

	"github.com/clinsim/backend/internal/models"
)

// AnalyzeMistakes returns the scenario's mistakes the submission made
// mechanically: an empty diagnosis or an empty plan.
func AnalyzeMistakes(mistakes []models.CommonMistake, diagnosis, plan string) []models.CommonMistake {
	committed := []models.CommonMistake{}
	for _, m := range mistakes {
		switch {
		case m.ID == models.MistakeEmptyDiagnosis && strings.TrimSpace(diagnosis) == "":
			committed = append(committed, m)
		case m.ID == models.MistakeEmptyPlan && strings.TrimSpace(plan) == "":
			committed = append(committed, m)
		}
	}
	return committed
}

// PointCoverage is how well one key anamnesis point was asked about.
type PointCoverage struct {
	Point   string  `json:"point"`
	Overlap float64 `json:"overlap"`
	Covered bool    `json:"covered"`
}

// Coverage summarizes which key anamnesis points the trainee's questions
// touched.
type Coverage struct {
	Points    []PointCoverage `json:"points"`
	Covered   int             `json:"covered"`
	Total     int             `json:"total"`
	Threshold float64         `json:"threshold"`
}

// AnamnesisCoverage scores each key point by the fraction of its words that
// occur anywhere in the trainee's messages. A point is covered when that
// fraction reaches threshold.
func AnamnesisCoverage(points []string, traineeMessages []string, threshold float64) Coverage {
	asked := tokenize(strings.Join(traineeMessages, " "))
	cov := Coverage{Points: make([]PointCoverage, 0, len(points)), Total: len(points), Threshold: threshold}

	for _, p := range points {
		overlap := containment(tokenize(p), asked)
		pc := PointCoverage{Point: p, Overlap: overlap, Covered: overlap > 0 && overlap >= threshold}
		if pc.Covered {
			cov.Covered++
		}
		cov.Points = append(cov.Points, pc)
	}
	return cov
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'а' && r <= 'я' || r == 'ё' || r >= '0' && r <= '9')
	})
	for _, word := range words {
		// Skip very short words (articles, prepositions)
		if len([]rune(word)) > 3 {
			tokens[word] = true
		}
	}
	return tokens
}

// containment is |a ∩ b| / |a|: the share of a's tokens found in b.
func containment(a, b map[string]bool) float64 {
	if len(a) == 0 {
		return 0
	}
	hits := 0
	for k := range a {
		if b[k] {
			hits++
		}
	}
	return float64(hits) / float64(len(a))
}
