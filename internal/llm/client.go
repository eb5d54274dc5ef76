// Package llm generates answers through a local Ollama server.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Generator defines the interface for answer generation.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Client calls the Ollama generate endpoint with non-streamed responses.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	options    generateOptions
}

// Config holds LLM client configuration.
type Config struct {
	BaseURL     string  // Default: http://localhost:11434
	Model       string  // Default: mistral
	Temperature float64 // Default: 0.2
	TopP        float64 // Default: 0.9
	TopK        int     // Default: 40
	Timeout     time.Duration
}

// NewClient creates an Ollama generation client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "mistral"
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.2
	}
	if cfg.TopP <= 0 {
		cfg.TopP = 0.9
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 40
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		options: generateOptions{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			TopK:        cfg.TopK,
		},
	}
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Generate runs the prompt through the model and returns the full response
// text.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	jsonBody, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: c.options,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if genResp.Error != "" {
			return "", fmt.Errorf("ollama error: %s", genResp.Error)
		}
		return "", fmt.Errorf("ollama error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return genResp.Response, nil
}

// Model returns the model being used.
func (c *Client) Model() string {
	return c.model
}

// MockClient returns canned responses for testing. An empty Response
// simulates a model that produced nothing.
type MockClient struct {
	Response string
	Err      error
}

func (c *MockClient) Generate(ctx context.Context, prompt string) (string, error) {
	return c.Response, c.Err
}

func (c *MockClient) Model() string {
	return "mock-llm"
}

var (
	_ Generator = (*Client)(nil)
	_ Generator = (*MockClient)(nil)
)
