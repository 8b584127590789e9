package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clinsim/backend/internal/generator"
	"github.com/clinsim/backend/internal/models"
	"github.com/clinsim/backend/internal/scenario"
	"github.com/clinsim/backend/internal/vitals"
)

// ── Fakes ───────────────────────────────────────────────

type clock struct{ now time.Time }

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeBackend struct {
	generated   *models.Scenario
	generateErr error
	reply       string
	score       float64

	personas    []string
	evaluations []models.EvaluationRequest
	consults    int
}

func (f *fakeBackend) GenerateScenario(ctx context.Context, _ generator.Filters) (*models.Scenario, []string, error) {
	if f.generateErr != nil {
		return nil, nil, f.generateErr
	}
	return f.generated, nil, nil
}

func (f *fakeBackend) PatientReply(ctx context.Context, _ []models.Message, persona string) string {
	f.personas = append(f.personas, persona)
	if f.reply == "" {
		return "It hurts."
	}
	return f.reply
}

func (f *fakeBackend) Consult(ctx context.Context, _ generator.ConsultRequest) string {
	f.consults++
	return "Ask about the pain."
}

func (f *fakeBackend) Evaluate(ctx context.Context, req models.EvaluationRequest) models.EvaluationResult {
	f.evaluations = append(f.evaluations, req)
	return models.EvaluationResult{Score: f.score}
}

type memHistory struct {
	records map[string][]models.HistoryRecord
}

func (h *memHistory) Append(ctx context.Context, key string, rec models.HistoryRecord) error {
	if h.records == nil {
		h.records = make(map[string][]models.HistoryRecord)
	}
	h.records[key] = append([]models.HistoryRecord{rec}, h.records[key]...)
	return nil
}

func (h *memHistory) List(ctx context.Context, key string) ([]models.HistoryRecord, error) {
	return h.records[key], nil
}

func chestPain() *models.Scenario {
	return &models.Scenario{
		ID:             "chest_pain",
		Name:           "Chest pain",
		Difficulty:     models.DifficultyMedium,
		PersonaPrompt:  "You are Ivan, 58.",
		Greeting:       "Hello doctor.",
		DiagnosisShort: "STEMI",
		KeyAnamnesis:   []string{"pain radiates to the left arm", "smoker for 30 years"},
		Investigations: map[string]models.Investigation{
			"ecg":      {RequestKeywords: []string{"ecg", "экг"}, Result: "ST elevation in II, III, aVF.", DelayTurns: 1},
			"troponin": {RequestKeywords: []string{"troponin"}, Result: "Troponin I 2.4 ng/mL.", DelayTurns: 0},
		},
		CommonMistakes: []models.CommonMistake{
			{ID: models.MistakeEmptyDiagnosis, Description: "No diagnosis", Penalty: 5},
			{ID: models.MistakeEmptyPlan, Description: "No plan", Penalty: 5},
		},
		HiddenTriggers: []models.HiddenTrigger{
			{ID: "smoking", Condition: models.ConditionKeyword, Keywords: []string{"smoke"}, RevealText: "Admit smoking.", Priority: 1},
			{ID: "fear", Condition: models.ConditionKeyword, Keywords: []string{"smoke", "pain"}, RevealText: "Say you fear death.", Priority: 5},
		},
	}
}

type fixture struct {
	ws      *Workspace
	backend *fakeBackend
	history *memHistory
	clock   *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{backend: &fakeBackend{score: 7}, history: &memHistory{}, clock: newClock()}
	m := NewManager(Deps{
		Backend:   f.backend,
		Scenarios: scenario.NewCatalog([]*models.Scenario{chestPain()}),
		History:   f.history,
		Now:       f.clock.Now,
	})
	f.ws = m.Workspace("trainee-1")
	return f
}

func (f *fixture) start(t *testing.T, prefs models.Preferences) {
	t.Helper()
	if err := f.ws.SetPreferences(prefs); err != nil {
		t.Fatalf("SetPreferences: %v", err)
	}
	if err := f.ws.SelectScenario(context.Background(), "chest_pain"); err != nil {
		t.Fatalf("SelectScenario: %v", err)
	}
}

// ── Tests ───────────────────────────────────────────────

func TestSelectScenario_StartsWithGreeting(t *testing.T) {
	f := newFixture(t)
	f.start(t, models.DefaultPreferences())

	v := f.ws.Snapshot(context.Background())
	if v.State != StateActive {
		t.Fatalf("expected active, got %s", v.State)
	}
	if len(v.Session.Messages) != 1 || v.Session.Messages[0].Content != "Hello doctor." {
		t.Errorf("expected greeting only, got %+v", v.Session.Messages)
	}
	if v.Session.Reference != nil {
		t.Error("expected the answer key to be hidden outside training mode")
	}
	if v.Session.Timer.Enabled {
		t.Error("expected no timer by default")
	}
}

func TestSelectScenario_Unknown(t *testing.T) {
	f := newFixture(t)
	err := f.ws.SelectScenario(context.Background(), "nope")
	if !errors.Is(err, scenario.ErrScenarioNotFound) {
		t.Errorf("expected ErrScenarioNotFound, got %v", err)
	}
	if f.ws.Snapshot(context.Background()).State != StateUnselected {
		t.Error("expected workspace to stay unselected")
	}
}

func TestSubmitMessage_SchedulesAndDeliversInvestigations(t *testing.T) {
	f := newFixture(t)
	f.start(t, models.DefaultPreferences())
	ctx := context.Background()

	res, err := f.ws.SubmitMessage(ctx, "Let's get an ECG and troponin.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Scheduled) != 2 {
		t.Errorf("expected both investigations scheduled, got %v", res.Scheduled)
	}
	if len(res.Delivered) != 1 || res.Delivered[0] != "troponin" {
		t.Errorf("expected troponin now, got %v", res.Delivered)
	}
	if strings.Contains(res.Reply.Content, "ST elevation") {
		t.Error("ECG delivered a turn early")
	}

	res, err = f.ws.SubmitMessage(ctx, "Any other symptoms?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Reply.Content, "[Result: ecg] ST elevation") {
		t.Errorf("expected ECG result on turn 2, got %q", res.Reply.Content)
	}

	res, _ = f.ws.SubmitMessage(ctx, "ECG again please")
	if len(res.Scheduled) != 0 || len(res.Delivered) != 0 {
		t.Errorf("expected delivered investigation not to repeat, got %+v", res)
	}
}

func TestSubmitMessage_TriggerFiresOnce(t *testing.T) {
	f := newFixture(t)
	f.start(t, models.DefaultPreferences())
	ctx := context.Background()

	if _, err := f.ws.SubmitMessage(ctx, "Do you smoke? Where is the pain?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.ws.SubmitMessage(ctx, "Do you smoke?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.ws.SubmitMessage(ctx, "Really, do you smoke?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := f.backend.personas
	if !strings.HasPrefix(p[0], "[SYSTEM TRIGGER: Say you fear death.]") {
		t.Errorf("expected highest priority trigger first, got %q", p[0])
	}
	if !strings.HasPrefix(p[1], "[SYSTEM TRIGGER: Admit smoking.]") {
		t.Errorf("expected remaining trigger second, got %q", p[1])
	}
	if p[2] != "You are Ivan, 58." {
		t.Errorf("expected no trigger on the third turn, got %q", p[2])
	}
}

func TestSubmitMessage_RejectsEmpty(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ws.SubmitMessage(context.Background(), "hi"); !errors.Is(err, ErrNoScenario) {
		t.Errorf("expected ErrNoScenario, got %v", err)
	}
	f.start(t, models.DefaultPreferences())
	if _, err := f.ws.SubmitMessage(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestSubmitMessage_AfterTimeUp(t *testing.T) {
	f := newFixture(t)
	prefs := models.DefaultPreferences()
	prefs.TimerMinutes = 5
	f.start(t, prefs)
	ctx := context.Background()

	if _, err := f.ws.SubmitMessage(ctx, "What happened?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.clock.Advance(6 * time.Minute)

	_, err := f.ws.SubmitMessage(ctx, "One more question")
	if !errors.Is(err, ErrTimeUp) {
		t.Fatalf("expected ErrTimeUp, got %v", err)
	}

	v := f.ws.Snapshot(ctx)
	if len(v.Session.Messages) != 3 {
		t.Errorf("expected the late message not to be appended, got %d messages", len(v.Session.Messages))
	}
	if v.State != StateEvaluated || v.Session.Evaluation == nil {
		t.Fatalf("expected automatic evaluation, got state %s", v.State)
	}
	if v.Session.Timer.RemainingSeconds != 0 {
		t.Errorf("expected remaining time clamped at zero, got %v", v.Session.Timer.RemainingSeconds)
	}

	req := f.backend.evaluations[0]
	if !req.TimeUp || req.Elapsed != 5*time.Minute {
		t.Errorf("expected time-up evaluation capped at the limit, got %+v", req)
	}

	recs := f.history.records["trainee-1"]
	if len(recs) != 1 || !recs[0].TimerActive || recs[0].ElapsedDisplay != "05:00" {
		t.Errorf("unexpected history: %+v", recs)
	}
}

func TestTick(t *testing.T) {
	f := newFixture(t)
	prefs := models.DefaultPreferences()
	prefs.TimerMinutes = 10
	f.start(t, prefs)
	ctx := context.Background()

	f.clock.Advance(9 * time.Minute)
	if f.ws.Tick(ctx) {
		t.Fatal("expected no expiry before the limit")
	}
	f.clock.Advance(time.Minute)
	if !f.ws.Tick(ctx) {
		t.Fatal("expected expiry at the limit")
	}
	if f.ws.Tick(ctx) {
		t.Error("expected a single evaluation")
	}
	if len(f.backend.evaluations) != 1 {
		t.Errorf("expected one evaluation, got %d", len(f.backend.evaluations))
	}
}

func TestSubmitEvaluation_FlagsEmptyAnswers(t *testing.T) {
	f := newFixture(t)
	f.start(t, models.DefaultPreferences())
	ctx := context.Background()

	if _, err := f.ws.SubmitEvaluation(ctx, Submission{Diagnosis: " ", Plan: ""}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v := f.ws.Snapshot(ctx)
	if len(v.Session.CommittedMistakes) != 2 {
		t.Errorf("expected empty_dx and empty_plan, got %+v", v.Session.CommittedMistakes)
	}
	if v.Session.Reference == nil || v.Session.Reference.Diagnosis != "STEMI" {
		t.Error("expected the answer key after evaluation")
	}
	if !v.Session.RetryAvailable {
		t.Error("expected retry to be offered")
	}

	if _, err := f.ws.SubmitMessage(ctx, "hello?"); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("expected ErrSessionLocked, got %v", err)
	}
	if err := f.ws.UpdateDraft(ctx, Draft{}); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("expected drafts locked, got %v", err)
	}
	if _, err := f.ws.SubmitEvaluation(ctx, Submission{}); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("expected a second submission to be refused, got %v", err)
	}
}

func TestSubmitEvaluation_AfterTimeUpKeepsAnswer(t *testing.T) {
	f := newFixture(t)
	prefs := models.DefaultPreferences()
	prefs.TimerMinutes = 5
	f.start(t, prefs)
	ctx := context.Background()

	f.clock.Advance(5*time.Minute + time.Second)
	res, err := f.ws.SubmitEvaluation(ctx, Submission{Differential: "PE", Diagnosis: "STEMI", Plan: "PCI"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil {
		t.Fatal("expected an evaluation result")
	}

	if len(f.backend.evaluations) != 1 {
		t.Fatalf("expected one evaluation, got %d", len(f.backend.evaluations))
	}
	req := f.backend.evaluations[0]
	if !req.TimeUp || req.Diagnosis != "STEMI" || req.Plan != "PCI" || req.Differential != "PE" {
		t.Errorf("expected the late answer evaluated as time-up, got %+v", req)
	}

	v := f.ws.Snapshot(ctx)
	if v.State != StateEvaluated {
		t.Errorf("expected evaluated, got %s", v.State)
	}
	if len(v.Session.CommittedMistakes) != 0 {
		t.Errorf("expected no empty-answer mistakes, got %+v", v.Session.CommittedMistakes)
	}
	if v.Session.Diagnosis != "STEMI" || v.Session.Plan != "PCI" {
		t.Errorf("expected submission stored, got dx=%q plan=%q", v.Session.Diagnosis, v.Session.Plan)
	}

	recs := f.history.records["trainee-1"]
	if len(recs) != 1 || recs[0].ElapsedDisplay != "05:00" {
		t.Errorf("unexpected history: %+v", recs)
	}
}

func TestRequestConsultation_Limit(t *testing.T) {
	f := newFixture(t)
	f.start(t, models.DefaultPreferences())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.ws.RequestConsultation(ctx); err != nil {
			t.Fatalf("consultation %d: %v", i+1, err)
		}
	}
	if _, err := f.ws.RequestConsultation(ctx); !errors.Is(err, ErrConsultLimit) {
		t.Errorf("expected ErrConsultLimit, got %v", err)
	}

	if _, err := f.ws.SubmitEvaluation(ctx, Submission{Diagnosis: "STEMI", Plan: "PCI"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.backend.evaluations[0].Consultations; got != 3 {
		t.Errorf("expected 3 consultations passed to evaluation, got %d", got)
	}
}

func TestRetry_OncePerEvaluation(t *testing.T) {
	f := newFixture(t)
	f.start(t, models.DefaultPreferences())
	ctx := context.Background()

	if err := f.ws.Retry(ctx); !errors.Is(err, ErrRetryUnavailable) {
		t.Fatalf("expected retry unavailable before evaluation, got %v", err)
	}

	f.ws.SubmitMessage(ctx, "Do you smoke?")
	f.ws.SubmitEvaluation(ctx, Submission{Diagnosis: "STEMI", Plan: "PCI"})

	if err := f.ws.Retry(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v := f.ws.Snapshot(ctx)
	if v.State != StateActive || !v.Session.TrainingMode {
		t.Fatalf("expected active training session, got %s training=%v", v.State, v.Session.TrainingMode)
	}
	if v.Session.Evaluation == nil || v.Session.Evaluation.Score != 7 {
		t.Error("expected prior evaluation kept")
	}
	if v.Session.Diagnosis != "STEMI" || v.Session.Plan != "PCI" {
		t.Error("expected drafts kept")
	}
	if len(v.Session.Messages) != 1 || v.Session.Turn != 0 {
		t.Errorf("expected a fresh dialogue, got %d messages turn %d", len(v.Session.Messages), v.Session.Turn)
	}
	if v.Session.Reference == nil {
		t.Error("expected the answer key in training mode")
	}

	// Triggers are re-armed for the new attempt.
	f.ws.SubmitMessage(ctx, "Do you smoke?")
	last := f.backend.personas[len(f.backend.personas)-1]
	if !strings.HasPrefix(last, "[SYSTEM TRIGGER:") {
		t.Errorf("expected trigger to fire again after retry, got %q", last)
	}

	f.ws.SubmitEvaluation(ctx, Submission{Diagnosis: "STEMI", Plan: "PCI"})
	if err := f.ws.Retry(ctx); err != nil {
		t.Errorf("expected retry offered again after the new evaluation, got %v", err)
	}
	if err := f.ws.Retry(ctx); !errors.Is(err, ErrRetryUnavailable) {
		t.Errorf("expected a second retry to be refused, got %v", err)
	}
}

func TestReset_KeepsPreferencesAndHistory(t *testing.T) {
	f := newFixture(t)
	prefs := models.DefaultPreferences()
	prefs.Specialization = "Cardiology"
	prefs.TimerMinutes = 15
	f.start(t, prefs)
	ctx := context.Background()

	f.ws.SubmitEvaluation(ctx, Submission{Diagnosis: "STEMI"})
	f.ws.Reset()

	v := f.ws.Snapshot(ctx)
	if v.State != StateUnselected || v.Session != nil {
		t.Errorf("expected unselected workspace, got %+v", v)
	}
	if v.Preferences != prefs {
		t.Errorf("expected preferences kept, got %+v", v.Preferences)
	}
	recs, _ := f.ws.History(ctx)
	if len(recs) != 1 || recs[0].ScenarioName != "Chest pain" {
		t.Errorf("expected history kept, got %+v", recs)
	}
}

func TestGenerateScenario_FailureLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t)
	f.start(t, models.DefaultPreferences())
	ctx := context.Background()
	f.ws.SubmitMessage(ctx, "Hello")

	f.backend.generateErr = &generator.GenerationError{Raw: "garbage", Err: errors.New("no json")}
	if _, err := f.ws.GenerateScenario(ctx); err == nil {
		t.Fatal("expected error")
	}
	v := f.ws.Snapshot(ctx)
	if v.State != StateActive || len(v.Session.Messages) != 3 {
		t.Errorf("expected session untouched, got %s with %d messages", v.State, len(v.Session.Messages))
	}

	f.backend.generateErr = nil
	gen := chestPain()
	gen.ID = "llm_gen_1"
	f.backend.generated = gen
	if _, err := f.ws.GenerateScenario(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.ws.Snapshot(ctx).Session.Patient.ScenarioID; got != "llm_gen_1" {
		t.Errorf("expected generated scenario, got %s", got)
	}
}

func TestSnapshot_HighlightsVitals(t *testing.T) {
	f := newFixture(t)
	f.backend.reply = "My pressure was 150/90 this morning."
	f.start(t, models.DefaultPreferences())
	ctx := context.Background()

	f.ws.SubmitMessage(ctx, "What is your blood pressure?")
	v := f.ws.Snapshot(ctx)
	if got := v.Session.Messages[2].Content; !strings.Contains(got, "**150/90**") {
		t.Errorf("expected highlighted reply, got %q", got)
	}
	if lines := v.Session.Vitals[vitals.BloodPressure]; len(lines) != 1 || !strings.HasPrefix(lines[0], "Question #1") {
		t.Errorf("unexpected vitals history: %v", v.Session.Vitals)
	}
}

func TestSetPreferences_Validation(t *testing.T) {
	f := newFixture(t)
	bad := models.Preferences{AgeRange: "teen", Gender: "x", Specialization: "Astrology", Difficulty: "extreme", TimerMinutes: 7}
	err := f.ws.SetPreferences(bad)
	var ve *ValidationError
	if !errors.As(err, &ve) || len(ve.Errors) != 5 {
		t.Fatalf("expected 5 validation errors, got %v", err)
	}
	if f.ws.Preferences() != models.DefaultPreferences() {
		t.Error("expected preferences unchanged")
	}

	good := models.Preferences{AgeRange: "Elderly (61-80)", Gender: "female", Specialization: "Neurology", Difficulty: models.DifficultyHard, TimerMinutes: 20}
	if err := f.ws.SetPreferences(good); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
