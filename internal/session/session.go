// Package session owns one trainee's consultation: the scenario in play,
// the dialogue, and every transition from selection to evaluation.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinsim/backend/internal/generator"
	"github.com/clinsim/backend/internal/models"
	"github.com/clinsim/backend/internal/platform/logger"
	"github.com/clinsim/backend/internal/schedule"
	"github.com/clinsim/backend/internal/vitals"
)

type State string

const (
	StateUnselected       State = "unselected"
	StateActive           State = "active"
	StateTimerExpired     State = "timer_expired"
	StateVoluntarilyEnded State = "voluntarily_ended"
	StateEvaluated        State = "evaluated"
)

var (
	ErrNoScenario       = errors.New("no scenario selected")
	ErrSessionLocked    = errors.New("session is locked")
	ErrTimeUp           = errors.New("time is up")
	ErrEmptyMessage     = errors.New("message is empty")
	ErrConsultLimit     = errors.New("consultation limit reached")
	ErrRetryUnavailable = errors.New("retry is not available")
)

type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Errors, "; "))
}

// ── Collaborators ───────────────────────────────────────

// Backend is the generation service as the session sees it. Only
// GenerateScenario can fail; the other calls degrade to fallback values.
type Backend interface {
	GenerateScenario(ctx context.Context, f generator.Filters) (*models.Scenario, []string, error)
	PatientReply(ctx context.Context, history []models.Message, persona string) string
	Consult(ctx context.Context, req generator.ConsultRequest) string
	Evaluate(ctx context.Context, req models.EvaluationRequest) models.EvaluationResult
}

type ScenarioSource interface {
	Get(id string) (*models.Scenario, error)
	Random(rng *rand.Rand) (*models.Scenario, error)
}

// HistoryStore keeps finished attempts per trainee, capped by the store.
type HistoryStore interface {
	Append(ctx context.Context, key string, rec models.HistoryRecord) error
	List(ctx context.Context, key string) ([]models.HistoryRecord, error)
}

type Deps struct {
	Backend           Backend
	Scenarios         ScenarioSource
	History           HistoryStore
	Log               *logger.Logger
	Now               func() time.Time
	MaxConsultations  int
	CoverageThreshold float64
}

func (d *Deps) withDefaults() {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MaxConsultations <= 0 {
		d.MaxConsultations = 3
	}
	if d.CoverageThreshold <= 0 {
		d.CoverageThreshold = 0.5
	}
}

// ── Session ─────────────────────────────────────────────

// Session is one attempt at one scenario. It is only mutated through
// Workspace transitions.
type Session struct {
	ID       string
	State    State
	Scenario *models.Scenario // per-session copy; trigger flags live here
	original *models.Scenario // pristine copy used on retry

	Messages      []models.Message
	Turn          int
	Plan          *schedule.Plan
	Consultations int
	ConsultTips   []string
	Vitals        vitals.History
	Timer         Timer

	Differential string
	Diagnosis    string
	PlanText     string
	Notes        string

	Evaluation        *models.EvaluationResult
	CommittedMistakes []models.CommonMistake
	Coverage          *Coverage

	TrainingMode bool
	RetryUsed    bool
	StartedAt    time.Time
	EndedAt      time.Time
}

func newSession(sc *models.Scenario, trainingMode bool, timerMinutes int, now time.Time) *Session {
	s := &Session{
		ID:           uuid.New().String(),
		State:        StateActive,
		Scenario:     sc.Clone(),
		original:     sc.Clone(),
		Plan:         schedule.NewPlan(),
		ConsultTips:  []string{},
		Vitals:       vitals.NewHistory(),
		TrainingMode: trainingMode,
		StartedAt:    now,
	}
	for i := range s.Scenario.HiddenTriggers {
		s.Scenario.HiddenTriggers[i].Fired = false
	}
	s.Messages = []models.Message{{Role: models.RolePatient, Content: sc.Greeting, CreatedAt: now}}
	if timerMinutes > 0 {
		s.Timer = Timer{Start: now, Limit: time.Duration(timerMinutes) * time.Minute}
	}
	return s
}

// Locked reports whether dialogue and drafts are closed.
func (s *Session) Locked() bool {
	return s.State != StateActive
}

// lastPatientReply is the patient message at the end of the dialogue, if
// the dialogue ends with one.
func (s *Session) lastPatientReply() string {
	if n := len(s.Messages); n > 0 && s.Messages[n-1].Role == models.RolePatient {
		return s.Messages[n-1].Content
	}
	return ""
}

func (s *Session) traineeMessages() []string {
	var out []string
	for _, m := range s.Messages {
		if m.Role == models.RoleTrainee {
			out = append(out, m.Content)
		}
	}
	return out
}
