package generator

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CLIClient shells out to the claude CLI for local development.
// No API key needed; the CLI uses the developer's own login.
type CLIClient struct {
	cliPath string
}

func NewCLIClient(cliPath string) *CLIClient {
	return &CLIClient{cliPath: cliPath}
}

func (c *CLIClient) Generate(ctx context.Context, req Request) (*LLMResponse, error) {
	args := []string{"--print", "--output-format", "text", "--max-turns", "1"}
	if req.System != "" {
		args = append(args, "--system-prompt", req.System)
	}
	cmd := exec.CommandContext(ctx, c.cliPath, args...)
	cmd.Stdin = strings.NewReader(cliPrompt(req))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackend, ctx.Err())
	}

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: claude CLI error: %w\nstderr: %s", ErrBackend, err, stderr.String())
	}

	return &LLMResponse{Content: strings.TrimSpace(stdout.String())}, nil
}

// cliPrompt flattens a chat into a transcript, since the CLI takes one
// prompt on stdin.
func cliPrompt(req Request) string {
	turns := NormalizeTurns(req.Messages)
	if len(turns) == 0 {
		return req.Prompt
	}

	var b strings.Builder
	b.WriteString("Conversation so far:\n\n")
	for _, t := range turns {
		if t.Role == RoleAssistant {
			b.WriteString("Patient: ")
		} else {
			b.WriteString("Doctor: ")
		}
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	b.WriteString("\nReply with the patient's next line only.")
	return b.String()
}
