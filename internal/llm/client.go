// Package llm provides the optional chat-completion client backing
// compose.LLMSummariser. It is never used by default; the core depends
// only on the compose.Summariser capability (spec.md §9 DESIGN NOTES).
package llm

import (
	"context"
	"fmt"

	"github.com/riverwatch/riverwatch/internal/httpx"
)

// Client is a minimal chat-completion client, modeled on the teacher's
// OpenAI provider but narrowed to the single operation the optional
// summariser needs.
type Client struct {
	http        *httpx.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

// New builds a Client against an OpenAI-compatible chat completions
// endpoint.
func New(http *httpx.Client, baseURL, apiKey, model string, temperature float64, maxTokens int) *Client {
	return &Client{http: http, baseURL: baseURL, apiKey: apiKey, model: model, temperature: temperature, maxTokens: maxTokens}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends a single user prompt and returns the model's reply text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := c.http.PostJSON(ctx, "llm", c.baseURL+"/chat/completions", headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
