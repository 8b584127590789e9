package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/clinsim/backend/internal/config"
	"github.com/clinsim/backend/internal/platform/logger"
)

// ErrBackend wraps every failure that came from the generation backend
// itself (network, timeout, empty choice list).
var ErrBackend = errors.New("generation backend error")

// Kind tells a client which of the four calls it is serving. Real backends
// ignore it; MockClient uses it to pick canned output.
type Kind string

const (
	KindScenario   Kind = "scenario"
	KindReply      Kind = "patient_reply"
	KindConsult    Kind = "consult"
	KindEvaluation Kind = "evaluation"
)

// Budget is the token limit and sampling temperature of one call kind.
type Budget struct {
	MaxTokens   int
	Temperature float64
}

var Budgets = map[Kind]Budget{
	KindScenario:   {MaxTokens: 5000, Temperature: 0.85},
	KindReply:      {MaxTokens: 400, Temperature: 0.75},
	KindConsult:    {MaxTokens: 150, Temperature: 0.5},
	KindEvaluation: {MaxTokens: 2000, Temperature: 0.4},
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one chat message sent to the backend.
type Turn struct {
	Role    string
	Content string
}

// Request is a single completion. When Messages is empty the call is a
// one-shot prompt; otherwise it is a chat seeded with System.
type Request struct {
	Kind        Kind
	System      string
	Prompt      string
	Messages    []Turn
	MaxTokens   int
	Temperature float64
}

// NewRequest fills MaxTokens and Temperature from Budgets.
func NewRequest(kind Kind, system, prompt string, messages []Turn) Request {
	b := Budgets[kind]
	return Request{
		Kind:        kind,
		System:      system,
		Prompt:      prompt,
		Messages:    messages,
		MaxTokens:   b.MaxTokens,
		Temperature: b.Temperature,
	}
}

// LLMClient is the interface every backend satisfies.
type LLMClient interface {
	Generate(ctx context.Context, req Request) (*LLMResponse, error)
}

// LLMResponse holds the raw response content and token usage.
type LLMResponse struct {
	Content      string
	PromptTokens int
	OutputTokens int
}

// NewClient picks the backend from configuration: CLI, mock, an
// OpenAI-compatible completions server, or the Anthropic API.
func NewClient(cfg config.LLMConfig, log *logger.Logger) (LLMClient, string) {
	switch {
	case cfg.UseCLI:
		log.Info("generator using Claude CLI", "path", cfg.CLIPath)
		return NewCLIClient(cfg.CLIPath), "claude-cli"
	case cfg.Mock:
		log.Info("generator using mock data")
		return NewMockClient(), "mock"
	case cfg.CompletionsURL != "":
		log.Info("generator using completions endpoint", "base_url", cfg.CompletionsURL, "model", cfg.CompletionsName)
		return NewCompletionsClient(cfg.CompletionsURL, cfg.CompletionsKey, cfg.CompletionsName, nil), cfg.CompletionsName
	default:
		log.Info("generator using Anthropic API", "model", cfg.AnthropicModel)
		return NewAPIClient(cfg.AnthropicModel, cfg.AnthropicAPIKey, log), cfg.AnthropicModel
	}
}

// ── APIClient — Anthropic SDK (Production) ─────────────────

type APIClient struct {
	client *anthropic.Client
	model  string
	log    *logger.Logger
}

func NewAPIClient(model, apiKey string, log *logger.Logger) *APIClient {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &APIClient{client: &client, model: model, log: log}
}

func (c *APIClient) Generate(ctx context.Context, req Request) (*LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: param.NewOpt(req.Temperature),
		Messages:    toAnthropicMessages(req),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := c.callWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	return &LLMResponse{
		Content:      b.String(),
		PromptTokens: int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

func (c *APIClient) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			sleepDuration := time.Duration(1<<uint(attempt)) * time.Second
			c.log.Warn("retrying Anthropic API call", "delay", sleepDuration, "attempt", attempt+1)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrBackend, ctx.Err())
			case <-time.After(sleepDuration):
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err
		c.log.Warn("Anthropic API attempt failed", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("%w: anthropic API failed after retries: %w", ErrBackend, lastErr)
}

// toAnthropicMessages converts the request into the alternating user /
// assistant list the Messages API requires: a leading assistant turn (the
// patient's greeting) gets a user turn in front, and consecutive turns of one
// role are merged.
func toAnthropicMessages(req Request) []anthropic.MessageParam {
	turns := NormalizeTurns(req.Messages)
	if len(turns) == 0 {
		return []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		}
	}

	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		if t.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		} else {
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	return out
}

const openingTurn = "(The doctor enters the examination room.)"

// NormalizeTurns returns turns that start with a user message and alternate
// roles. Empty turns are dropped.
func NormalizeTurns(turns []Turn) []Turn {
	var out []Turn
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		role := RoleUser
		if t.Role == RoleAssistant {
			role = RoleAssistant
		}
		if len(out) == 0 && role == RoleAssistant {
			out = append(out, Turn{Role: RoleUser, Content: openingTurn})
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + content
			continue
		}
		out = append(out, Turn{Role: role, Content: content})
	}
	return out
}
