package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/clinsim/backend/internal/extract"
	"github.com/clinsim/backend/internal/models"
	"github.com/clinsim/backend/internal/platform/logger"
	"github.com/clinsim/backend/internal/scenario"
)

const (
	FallbackSilent      = "The patient stays silent..."
	FallbackUnavailable = "The patient cannot answer right now."
	FallbackConsult     = "Your colleague is busy and cannot advise right now."
)

// GenerationError is returned when a scenario could not be produced. Raw is
// the model output (possibly empty) so the caller can show it.
type GenerationError struct {
	Raw string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("scenario generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

type Options struct {
	ShortTimeout time.Duration
	LongTimeout  time.Duration
	Now          func() time.Time
}

// Generator runs the four backend calls of a consultation: scenario
// generation, patient replies, senior consultations, and evaluation.
type Generator struct {
	llm          LLMClient
	model        string
	log          *logger.Logger
	shortTimeout time.Duration
	longTimeout  time.Duration
	now          func() time.Time
}

func NewGenerator(llm LLMClient, model string, log *logger.Logger, opts Options) *Generator {
	if log == nil {
		log = logger.Nop()
	}
	if opts.ShortTimeout <= 0 {
		opts.ShortTimeout = 45 * time.Second
	}
	if opts.LongTimeout <= 0 {
		opts.LongTimeout = 240 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Generator{
		llm:          llm,
		model:        model,
		log:          log.With("component", "generator"),
		shortTimeout: opts.ShortTimeout,
		longTimeout:  opts.LongTimeout,
		now:          opts.Now,
	}
}

func (g *Generator) ModelName() string {
	return g.model
}

// GenerateScenario asks the backend for a new case matching f. The returned
// scenario always carries a fresh "llm_gen_" id, whatever the model wrote.
func (g *Generator) GenerateScenario(ctx context.Context, f Filters) (*models.Scenario, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.longTimeout)
	defer cancel()

	req := NewRequest(KindScenario, ScenarioSystemPrompt(), BuildScenarioPrompt(f), nil)
	start := g.now()
	resp, err := g.llm.Generate(ctx, req)
	if err != nil {
		g.log.Warn("scenario generation backend failed", "error", err)
		return nil, nil, &GenerationError{Err: wrapBackend(err)}
	}

	text, err := extract.ExtractJSON(resp.Content)
	if err != nil {
		g.log.Warn("scenario JSON could not be extracted", "error", err, "raw_len", len(resp.Content))
		return nil, nil, &GenerationError{Raw: resp.Content, Err: err}
	}

	stamped, err := sjson.Set(text, "id", g.newScenarioID())
	if err != nil {
		return nil, nil, &GenerationError{Raw: resp.Content, Err: fmt.Errorf("stamping scenario id: %w", err)}
	}

	candidate, ok := gjson.Parse(stamped).Value().(map[string]any)
	if !ok {
		return nil, nil, &GenerationError{Raw: resp.Content, Err: extract.ErrNoJSONFound}
	}

	sc, warnings, err := scenario.Normalize(candidate)
	if err != nil {
		return nil, warnings, &GenerationError{Raw: resp.Content, Err: err}
	}
	for _, w := range warnings {
		g.log.Warn("generated scenario normalized with warning", "scenario_id", sc.ID, "warning", w)
	}

	g.log.Info("scenario generated",
		"scenario_id", sc.ID,
		"difficulty", sc.Difficulty,
		"prompt_tokens", resp.PromptTokens,
		"output_tokens", resp.OutputTokens,
		"duration", g.now().Sub(start),
	)
	return sc, warnings, nil
}

func (g *Generator) newScenarioID() string {
	t := g.now()
	return fmt.Sprintf("llm_gen_%s%06d", t.Format("20060102150405"), t.Nanosecond()/1000)
}

// PatientReply plays the patient for one turn. It never fails: an empty
// answer or a backend error yields a placeholder line.
func (g *Generator) PatientReply(ctx context.Context, history []models.Message, persona string) string {
	ctx, cancel := context.WithTimeout(ctx, g.shortTimeout)
	defer cancel()

	resp, err := g.llm.Generate(ctx, NewRequest(KindReply, persona, "", ReplyTurns(history)))
	if err != nil {
		g.log.Warn("patient reply failed", "error", err)
		return FallbackUnavailable
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		g.log.Warn("patient reply was empty")
		return FallbackSilent
	}
	return reply
}

// Consult asks a senior colleague for one tactical tip.
func (g *Generator) Consult(ctx context.Context, req ConsultRequest) string {
	ctx, cancel := context.WithTimeout(ctx, g.shortTimeout)
	defer cancel()

	resp, err := g.llm.Generate(ctx, NewRequest(KindConsult, "", BuildConsultPrompt(req), nil))
	if err != nil {
		g.log.Warn("consultation failed", "error", err)
		return FallbackConsult
	}
	tip := strings.TrimSpace(resp.Content)
	if tip == "" {
		return FallbackConsult
	}
	return tip
}

func wrapBackend(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBackend) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBackend, err)
}
