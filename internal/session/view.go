package session

import (
	"context"
	"time"

	"github.com/clinsim/backend/internal/models"
	"github.com/clinsim/backend/internal/schedule"
	"github.com/clinsim/backend/internal/vitals"
)

// View is the read-only picture of a workspace handed to clients.
type View struct {
	Preferences models.Preferences `json:"preferences"`
	State       State              `json:"state"`
	Session     *SessionView       `json:"session,omitempty"`
}

type SessionView struct {
	ID           string                   `json:"id"`
	Patient      PatientCard              `json:"patient"`
	Messages     []models.Message         `json:"messages"`
	Turn         int                      `json:"turn"`
	Orders       []schedule.Order         `json:"orders"`
	Vitals       map[vitals.Sign][]string `json:"vitals"`
	Consultation ConsultationView         `json:"consultation"`
	Timer        TimerView                `json:"timer"`

	Differential string `json:"differential"`
	Diagnosis    string `json:"diagnosis"`
	Plan         string `json:"plan"`
	Notes        string `json:"notes"`

	TrainingMode   bool `json:"training_mode"`
	Locked         bool `json:"locked"`
	RetryAvailable bool `json:"retry_available"`

	Evaluation        *models.EvaluationResult `json:"evaluation,omitempty"`
	CommittedMistakes []models.CommonMistake   `json:"committed_mistakes,omitempty"`
	Coverage          *Coverage                `json:"anamnesis_coverage,omitempty"`
	Reference         *Reference               `json:"reference,omitempty"`
}

// PatientCard is what the trainee sees before asking anything.
type PatientCard struct {
	ScenarioID        string            `json:"scenario_id"`
	Name              string            `json:"name"`
	Difficulty        models.Difficulty `json:"difficulty"`
	InitialInfo       string            `json:"initial_info"`
	Appearance        string            `json:"appearance"`
	ObjectiveFindings map[string]string `json:"objective_findings"`
	InitialLabResults map[string]any    `json:"initial_lab_results"`
}

type ConsultationView struct {
	Used int      `json:"used"`
	Max  int      `json:"max"`
	Tips []string `json:"tips"`
}

type TimerView struct {
	Enabled          bool    `json:"enabled"`
	LimitSeconds     float64 `json:"limit_seconds"`
	RemainingSeconds float64 `json:"remaining_seconds"`
	Expired          bool    `json:"expired"`
}

// Reference is the answer key. It is only shown in training mode or once
// the attempt has been evaluated.
type Reference struct {
	Diagnosis      string                          `json:"diagnosis"`
	Detailed       string                          `json:"diagnosis_detailed"`
	KeyAnamnesis   []string                        `json:"key_anamnesis_points"`
	CorrectPlan    string                          `json:"correct_plan"`
	Differentials  []string                        `json:"differential_diagnoses"`
	PhysicalExam   map[string]string               `json:"physical_exam_findings"`
	Investigations map[string]models.Investigation `json:"investigations"`
	CommonMistakes []models.CommonMistake          `json:"common_mistakes"`
}

// Snapshot renders the workspace. Patient messages carry vitals highlight
// markup; the stored dialogue is untouched.
func (w *Workspace) Snapshot(ctx context.Context) View {
	w.mu.Lock()
	defer w.mu.Unlock()

	v := View{Preferences: w.prefs, State: StateUnselected}
	s := w.session
	if s == nil {
		return v
	}
	v.State = s.State
	v.Session = w.sessionView(s, w.deps.Now())
	return v
}

func (w *Workspace) sessionView(s *Session, now time.Time) *SessionView {
	sc := s.Scenario
	sv := &SessionView{
		ID: s.ID,
		Patient: PatientCard{
			ScenarioID:        sc.ID,
			Name:              sc.Name,
			Difficulty:        sc.Difficulty,
			InitialInfo:       sc.InitialInfo,
			Appearance:        sc.Appearance,
			ObjectiveFindings: sc.ObjectiveFindings,
			InitialLabResults: sc.InitialLabResults,
		},
		Messages: make([]models.Message, 0, len(s.Messages)),
		Turn:     s.Turn,
		Orders:   s.Plan.Pending(),
		Vitals:   make(map[vitals.Sign][]string, len(vitals.Signs)),
		Consultation: ConsultationView{
			Used: s.Consultations,
			Max:  w.deps.MaxConsultations,
			Tips: s.ConsultTips,
		},
		Timer: TimerView{
			Enabled:          s.Timer.Enabled(),
			LimitSeconds:     s.Timer.Limit.Seconds(),
			RemainingSeconds: s.Timer.Remaining(now).Seconds(),
			Expired:          s.Timer.Expired(now),
		},
		Differential:      s.Differential,
		Diagnosis:         s.Diagnosis,
		Plan:              s.PlanText,
		Notes:             s.Notes,
		TrainingMode:      s.TrainingMode,
		Locked:            s.Locked(),
		RetryAvailable:    s.State == StateEvaluated && !s.RetryUsed,
		Evaluation:        s.Evaluation,
		CommittedMistakes: s.CommittedMistakes,
		Coverage:          s.Coverage,
	}

	for _, m := range s.Messages {
		if m.Role == models.RolePatient {
			m.Content = vitals.Highlight(m.Content)
		}
		sv.Messages = append(sv.Messages, m)
	}
	for _, sign := range vitals.Signs {
		sv.Vitals[sign] = s.Vitals.Lines(sign)
	}

	if s.TrainingMode || s.State == StateEvaluated {
		sv.Reference = &Reference{
			Diagnosis:      sc.DiagnosisShort,
			Detailed:       sc.DiagnosisDetailed,
			KeyAnamnesis:   sc.KeyAnamnesis,
			CorrectPlan:    sc.CorrectPlan,
			Differentials:  sc.Differentials,
			PhysicalExam:   sc.PhysicalExam,
			Investigations: sc.Investigations,
			CommonMistakes: sc.CommonMistakes,
		}
	}
	return sv
}
