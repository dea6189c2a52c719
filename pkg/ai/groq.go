package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/johnquangdev/clinical-scribe/pkg/config"
)

const (
	defaultGroqBaseURL = "https://api.groq.com"
	defaultGroqModel   = "llama-3.3-70b-versatile"
)

// GroqClient is a minimal client for Groq chat completions
type GroqClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewGroqClient creates a Groq client using values from the provided config.
// Pass a nil config to fall back to environment variables.
func NewGroqClient(cfg *config.GroqConfig) *GroqClient {
	var apiKey, base, model string
	if cfg != nil {
		apiKey, base, model = cfg.APIKey, cfg.BaseURL, cfg.Model
	}
	if apiKey == "" {
		apiKey = os.Getenv("GROQ_API_KEY")
	}
	if base == "" {
		base = os.Getenv("GROQ_API_URL")
	}
	if base == "" {
		base = defaultGroqBaseURL
	}
	if model == "" {
		model = defaultGroqModel
	}

	return &GroqClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(base, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

// WithHTTPClient replaces the underlying http client
func (g *GroqClient) WithHTTPClient(c *http.Client) *GroqClient {
	g.client = c
	return g
}

// Model returns the model name sent with every request
func (g *GroqClient) Model() string {
	return g.model
}

// Message is one chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat asks the model for a specific output shape
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatRequest is the shape for chat completion requests
type ChatRequest struct {
	Model          string          `json:"model,omitempty"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatResponse is a minimal response shape
type ChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("groq returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("groq returned status %d: %s", e.StatusCode, e.Body)
}

// Complete sends one chat completion and returns the assistant content.
// Deadlines come from ctx.
func (g *GroqClient) Complete(ctx context.Context, system, prompt string, jsonOutput bool) (string, error) {
	reqBody := ChatRequest{
		Model: g.model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   4096,
	}
	if jsonOutput {
		reqBody.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	endpoint := g.baseURL + "/openai/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq request failed after %s: %w", time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var cr ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("failed to decode groq response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("empty response from groq")
	}
	return cr.Choices[0].Message.Content, nil
}
