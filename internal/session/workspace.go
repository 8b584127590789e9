package session

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/clinsim/backend/internal/generator"
	"github.com/clinsim/backend/internal/models"
	"github.com/clinsim/backend/internal/schedule"
	"github.com/clinsim/backend/internal/vitals"
)

// RandomScenario asks SelectScenario for any predefined scenario.
const RandomScenario = "random"

// Workspace is one trainee's desk: preferences that outlive sessions and
// at most one current session. All methods are safe for concurrent use.
type Workspace struct {
	mu      sync.Mutex
	key     string
	prefs   models.Preferences
	session *Session
	deps    *Deps
}

func NewWorkspace(key string, deps *Deps) *Workspace {
	deps.withDefaults()
	return &Workspace{key: key, prefs: models.DefaultPreferences(), deps: deps}
}

func (w *Workspace) Key() string { return w.key }

// ── Selection ───────────────────────────────────────────

// SelectScenario starts a session on a predefined scenario. id may be
// RandomScenario. Any current session is replaced.
func (w *Workspace) SelectScenario(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.deps.Scenarios == nil {
		return ErrNoScenario
	}

	var (
		sc  *models.Scenario
		err error
	)
	if id == "" || id == RandomScenario {
		sc, err = w.deps.Scenarios.Random(rand.New(rand.NewSource(w.deps.Now().UnixNano())))
	} else {
		sc, err = w.deps.Scenarios.Get(id)
	}
	if err != nil {
		return err
	}

	w.start(sc)
	return nil
}

// GenerateScenario asks the backend for a new case built from the current
// preferences. On failure the current session is left as it was.
func (w *Workspace) GenerateScenario(ctx context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sc, warnings, err := w.deps.Backend.GenerateScenario(ctx, generator.FiltersFrom(w.prefs))
	if err != nil {
		w.deps.Log.Warn("scenario generation failed", "workspace", w.key, "error", err)
		return warnings, err
	}

	w.start(sc)
	return warnings, nil
}

func (w *Workspace) start(sc *models.Scenario) {
	w.session = newSession(sc, w.prefs.StartWithHints, w.prefs.TimerMinutes, w.deps.Now())
	w.deps.Log.Info("session started",
		"workspace", w.key,
		"session_id", w.session.ID,
		"scenario_id", sc.ID,
		"training_mode", w.session.TrainingMode,
		"timer", w.session.Timer.Limit,
	)
}

// ── Dialogue ────────────────────────────────────────────

// TurnResult is what one trainee message produced.
type TurnResult struct {
	Reply     models.Message `json:"reply"`
	Scheduled []string       `json:"scheduled"`
	Delivered []string       `json:"delivered"`
	Vitals    vitals.Reading `json:"vitals"`
	Trigger   string         `json:"-"`
}

// SubmitMessage appends a trainee message and the patient's reply. After
// the timer ran out the message is rejected unappended, the session is
// evaluated, and ErrTimeUp is returned.
func (w *Workspace) SubmitMessage(ctx context.Context, text string) (*TurnResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, err := w.active(ctx)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	now := w.deps.Now()
	previous := s.lastPatientReply()
	s.Turn++
	s.Messages = append(s.Messages, models.Message{Role: models.RoleTrainee, Content: text, Turn: s.Turn, CreatedAt: now})

	res := &TurnResult{Scheduled: s.Plan.Schedule(s.Scenario.Investigations, text, s.Turn)}

	fired := schedule.Fire(s.Scenario.HiddenTriggers, schedule.Context{
		Message:         text,
		TraineeMessages: s.Turn,
		PreviousReply:   previous,
	})
	if fired != nil {
		res.Trigger = fired.ID
		w.deps.Log.Debug("hidden trigger fired", "session_id", s.ID, "trigger_id", fired.ID, "turn", s.Turn)
	}

	reply := w.deps.Backend.PatientReply(ctx, s.Messages, schedule.ComposePersona(s.Scenario.PersonaPrompt, fired))
	reply, delivered := s.Plan.Deliver(reply, s.Turn)
	for _, o := range delivered {
		res.Delivered = append(res.Delivered, o.Key)
	}
	res.Vitals = s.Vitals.Record(reply, vitals.TurnTag(s.Turn))

	res.Reply = models.Message{Role: models.RolePatient, Content: reply, Turn: s.Turn, CreatedAt: w.deps.Now()}
	s.Messages = append(s.Messages, res.Reply)
	return res, nil
}

// Draft carries partial updates to the trainee's working notes. Nil fields
// are left unchanged.
type Draft struct {
	Differential *string `json:"differential"`
	Diagnosis    *string `json:"diagnosis"`
	Plan         *string `json:"plan"`
	Notes        *string `json:"notes"`
}

func (w *Workspace) UpdateDraft(ctx context.Context, d Draft) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, err := w.active(ctx)
	if err != nil {
		return err
	}
	if d.Differential != nil {
		s.Differential = *d.Differential
	}
	if d.Diagnosis != nil {
		s.Diagnosis = *d.Diagnosis
	}
	if d.Plan != nil {
		s.PlanText = *d.Plan
	}
	if d.Notes != nil {
		s.Notes = *d.Notes
	}
	return nil
}

// RequestConsultation asks a senior colleague for a tip. Each request
// counts against the score whether or not the colleague could answer.
func (w *Workspace) RequestConsultation(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, err := w.active(ctx)
	if err != nil {
		return "", err
	}
	if s.Consultations >= w.deps.MaxConsultations {
		return "", ErrConsultLimit
	}

	s.Consultations++
	tip := w.deps.Backend.Consult(ctx, generator.ConsultRequest{
		Scenario:  s.Scenario,
		Dialogue:  s.Messages,
		Diagnosis: s.Diagnosis,
		Plan:      s.PlanText,
	})
	s.ConsultTips = append(s.ConsultTips, tip)
	return tip, nil
}

// ── Ending ──────────────────────────────────────────────

// Submission is the trainee's final answer.
type Submission struct {
	Differential string `json:"differential"`
	Diagnosis    string `json:"diagnosis"`
	Plan         string `json:"plan"`
}

// SubmitEvaluation ends the attempt voluntarily and evaluates it. A
// submission arriving after the timer ran out but before any Tick noticed is
// still stored and evaluated as a time-up attempt.
func (w *Workspace) SubmitEvaluation(ctx context.Context, sub Submission) (*models.EvaluationResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.session
	if s == nil {
		return nil, ErrNoScenario
	}
	switch s.State {
	case StateActive:
	case StateTimerExpired:
		return nil, ErrTimeUp
	default:
		return nil, ErrSessionLocked
	}

	s.Differential = strings.TrimSpace(sub.Differential)
	s.Diagnosis = strings.TrimSpace(sub.Diagnosis)
	s.PlanText = strings.TrimSpace(sub.Plan)
	if s.Timer.Expired(w.deps.Now()) {
		w.expire(ctx, s)
		return s.Evaluation, nil
	}
	s.State = StateVoluntarilyEnded
	w.evaluate(ctx, s, false)
	return s.Evaluation, nil
}

// Tick checks the timer. An expired session is locked and evaluated with
// what was gathered so far. It reports whether that happened.
func (w *Workspace) Tick(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.session
	if s == nil || s.State != StateActive || !s.Timer.Expired(w.deps.Now()) {
		return false
	}
	w.expire(ctx, s)
	return true
}

// active returns the session if it accepts input. An expired timer is
// handled here so every input path rejects late input the same way.
func (w *Workspace) active(ctx context.Context) (*Session, error) {
	s := w.session
	if s == nil {
		return nil, ErrNoScenario
	}
	switch s.State {
	case StateActive:
	case StateTimerExpired:
		return nil, ErrTimeUp
	default:
		return nil, ErrSessionLocked
	}
	if s.Timer.Expired(w.deps.Now()) {
		w.expire(ctx, s)
		return nil, ErrTimeUp
	}
	return s, nil
}

func (w *Workspace) expire(ctx context.Context, s *Session) {
	s.State = StateTimerExpired
	w.deps.Log.Info("session timer expired", "workspace", w.key, "session_id", s.ID)
	w.evaluate(ctx, s, true)
}

func (w *Workspace) evaluate(ctx context.Context, s *Session, timeUp bool) {
	now := w.deps.Now()
	elapsed := s.Timer.Elapsed(now)
	if !s.Timer.Enabled() {
		elapsed = now.Sub(s.StartedAt)
		if elapsed < 0 {
			elapsed = 0
		}
	}

	result := w.deps.Backend.Evaluate(ctx, models.EvaluationRequest{
		Scenario:      s.Scenario,
		Dialogue:      s.Messages,
		Differential:  s.Differential,
		Diagnosis:     s.Diagnosis,
		Plan:          s.PlanText,
		Consultations: s.Consultations,
		Elapsed:       elapsed,
		TimerLimit:    s.Timer.Limit,
		TimeUp:        timeUp,
	})

	coverage := AnamnesisCoverage(s.Scenario.KeyAnamnesis, s.traineeMessages(), w.deps.CoverageThreshold)
	s.Evaluation = &result
	s.CommittedMistakes = AnalyzeMistakes(s.Scenario.CommonMistakes, s.Diagnosis, s.PlanText)
	s.Coverage = &coverage
	s.State = StateEvaluated
	s.RetryUsed = false
	s.EndedAt = now

	w.deps.Log.Info("session evaluated",
		"workspace", w.key,
		"session_id", s.ID,
		"score", result.Score,
		"degraded", result.Degraded,
		"time_up", timeUp,
	)

	if w.deps.History == nil {
		return
	}
	rec := models.HistoryRecord{
		ScenarioName:      s.Scenario.Name,
		Score:             result.Score,
		Difficulty:        s.Scenario.Difficulty,
		Timestamp:         now,
		ElapsedDisplay:    generator.FormatElapsed(elapsed),
		TimerActive:       s.Timer.Enabled(),
		ConsultationsUsed: s.Consultations,
	}
	if err := w.deps.History.Append(ctx, w.key, rec); err != nil {
		w.deps.Log.Warn("failed to append history", "workspace", w.key, "error", err)
	}
}

// ── Retry & Reset ───────────────────────────────────────

// Retry replays the evaluated scenario in training mode. It is offered once
// per evaluation. The prior evaluation stays visible until the new attempt
// is evaluated; diagnosis and plan drafts carry over.
func (w *Workspace) Retry(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev := w.session
	if prev == nil || prev.State != StateEvaluated || prev.RetryUsed {
		return ErrRetryUnavailable
	}

	next := newSession(prev.original, true, int(prev.Timer.Limit.Minutes()), w.deps.Now())
	next.Evaluation = prev.Evaluation
	next.CommittedMistakes = prev.CommittedMistakes
	next.Coverage = prev.Coverage
	next.Differential = prev.Differential
	next.Diagnosis = prev.Diagnosis
	next.PlanText = prev.PlanText
	next.Notes = prev.Notes
	next.RetryUsed = true
	w.session = next

	w.deps.Log.Info("session retried in training mode", "workspace", w.key, "session_id", next.ID, "previous_id", prev.ID)
	return nil
}

// Reset drops the current session. Preferences and history survive.
func (w *Workspace) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.session = nil
}

// ── Preferences ─────────────────────────────────────────

func (w *Workspace) Preferences() models.Preferences {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.prefs
}

// SetPreferences validates and stores p. They apply from the next session.
func (w *Workspace) SetPreferences(p models.Preferences) error {
	if err := ValidatePreferences(p); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prefs = p
	return nil
}

func ValidatePreferences(p models.Preferences) error {
	var errs []string
	if p.AgeRange != models.AnyOption {
		if _, ok := models.FindAgeRange(p.AgeRange); !ok {
			errs = append(errs, "unknown age range "+p.AgeRange)
		}
	}
	if !contains(models.Genders, p.Gender) {
		errs = append(errs, "unknown gender "+p.Gender)
	}
	if p.Specialization != models.AnyOption && !contains(models.Specializations, p.Specialization) {
		errs = append(errs, "unknown specialization "+p.Specialization)
	}
	if !models.ValidDifficulties[p.Difficulty] {
		errs = append(errs, "unknown difficulty "+string(p.Difficulty))
	}
	if !models.ValidTimerMinutes(p.TimerMinutes) {
		errs = append(errs, "timer must be one of the offered durations")
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// History lists the trainee's finished attempts, newest first.
func (w *Workspace) History(ctx context.Context) ([]models.HistoryRecord, error) {
	if w.deps.History == nil {
		return []models.HistoryRecord{}, nil
	}
	return w.deps.History.List(ctx, w.key)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
