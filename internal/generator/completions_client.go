package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// CompletionsClient talks to an OpenAI-compatible server such as a local
// KoboldCpp, llama.cpp, or vLLM instance. Chat requests go to
// /v1/chat/completions, one-shot prompts to /v1/completions.
type CompletionsClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewCompletionsClient builds a client for baseURL. A trailing "/v1" on
// baseURL is dropped, so "http://host:5002" and "http://host:5002/v1/" reach
// the same endpoints. A nil httpClient gets a pooled transport; tests pass
// one with a custom RoundTripper.
func NewCompletionsClient(baseURL, apiKey, model string, httpClient *http.Client) *CompletionsClient {
	if httpClient == nil {
		httpClient = &http.Client{Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}}
	}
	return &CompletionsClient{
		baseURL:    trimBaseURL(baseURL),
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		httpClient: httpClient,
	}
}

func trimBaseURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	return strings.TrimRight(strings.TrimSuffix(u, "/v1"), "/")
}

// HTTPError is a non-2xx answer from the server.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("completions endpoint returned %d: %s", e.StatusCode, e.Body)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages,omitempty"`
	Prompt      string        `json:"prompt,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *CompletionsClient) Generate(ctx context.Context, req Request) (*LLMResponse, error) {
	body := completionRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	path := "/v1/completions"
	if len(req.Messages) > 0 {
		path = "/v1/chat/completions"
		if req.System != "" {
			body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
		}
		for _, t := range req.Messages {
			body.Messages = append(body.Messages, chatMessage{Role: t.Role, Content: t.Content})
		}
	} else {
		body.Prompt = req.Prompt
		if req.System != "" {
			body.Prompt = req.System + "\n\n" + req.Prompt
		}
	}

	var resp completionResponse
	if err := c.doJSON(ctx, path, body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackend, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", ErrBackend)
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		content = resp.Choices[0].Text
	}
	return &LLMResponse{
		Content:      content,
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (c *CompletionsClient) doJSON(ctx context.Context, path string, body any, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
