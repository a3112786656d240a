package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

const (
	ollamaDefaultBaseURL = "http://localhost:11434"
	ollamaDefaultModel   = "llama3.1"
)

// ollamaClient talks to a local Ollama server. No API key is needed.
type ollamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func newOllamaClient(cfg Config) (Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = ollamaDefaultModel
	}
	return &ollamaClient{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (c *ollamaClient) Ask(ctx context.Context, req Request) (*Answer, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  c.model,
		Prompt: buildPrompt(req),
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return nil, providerErr(Ollama, "marshal request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, providerErr(Ollama, "create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, providerErr(Ollama, "request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providerErr(Ollama, "read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, providerErr(Ollama, "server returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var result ollamaResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, providerErr(Ollama, "unmarshal response: %v", err)
	}
	if result.Error != "" {
		return nil, providerErr(Ollama, "server error: %s", result.Error)
	}

	return parseAnswer(Ollama, result.Response)
}
