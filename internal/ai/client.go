// Package ai abstracts the language-model backends used to interpret pages
// and resolve ambiguous form fields. Callers depend only on the Client
// interface; the concrete provider is chosen once at construction.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an LLM backend.
type Provider string

const (
	OpenAI    Provider = "openai"
	Anthropic Provider = "anthropic"
	Gemini    Provider = "gemini"
	Ollama    Provider = "ollama"
	Mock      Provider = "mock"
)

// Config carries everything needed to construct a client.
type Config struct {
	Provider Provider
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// Request is one question about a page, with supporting context and the JSON
// shape the answer is expected to match.
type Request struct {
	Context  string
	Question string
	Shape    string
}

// Answer is the structured reply. Attribute and Confidence are populated when
// the shape asks for a field-to-attribute resolution; Fields carries any other
// string values from the response object; Raw is the untouched model output.
type Answer struct {
	Attribute  string
	Confidence float64
	Fields     map[string]string
	Raw        string
}

// Client is the single capability the rest of the agent depends on.
type Client interface {
	Ask(ctx context.Context, req Request) (*Answer, error)
}

// NewClient creates a client for the configured provider.
func NewClient(cfg Config) (Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	switch cfg.Provider {
	case OpenAI:
		return newOpenAIClient(cfg)
	case Anthropic:
		return newAnthropicClient(cfg)
	case Gemini:
		return newGeminiClient(cfg)
	case Ollama:
		return newOllamaClient(cfg)
	case Mock:
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
}

// ProviderError marks a transport, timeout or malformed-response failure.
// The execution engine treats it as recoverable.
type ProviderError struct {
	Provider Provider
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func providerErr(p Provider, format string, v ...interface{}) error {
	return &ProviderError{Provider: p, Err: fmt.Errorf(format, v...)}
}

// buildPrompt renders a Request into the single-turn prompt all providers use.
func buildPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("You are assisting an automated job-application agent.\n\n")
	if req.Context != "" {
		sb.WriteString("Context:\n")
		sb.WriteString(req.Context)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(req.Question)
	sb.WriteString("\n\n")
	if req.Shape != "" {
		sb.WriteString("Respond with ONLY a JSON object matching this shape, no other text:\n")
		sb.WriteString(req.Shape)
		sb.WriteString("\n")
	}
	return sb.String()
}

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// parseAnswer extracts the JSON object from a model reply. Models routinely
// wrap JSON in markdown fences or prose, so the first balanced-looking object
// in the text is accepted.
func parseAnswer(p Provider, text string) (*Answer, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	match := jsonObjectRe.FindString(cleaned)
	if match == "" {
		return nil, providerErr(p, "no JSON object in response: %q", truncate(text, 200))
	}

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, providerErr(p, "malformed JSON in response: %v", err)
	}

	answer := &Answer{Raw: text, Fields: make(map[string]string)}
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			answer.Fields[k] = val
		case float64:
			answer.Fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			answer.Fields[k] = strconv.FormatBool(val)
		}
	}
	answer.Attribute = answer.Fields["attribute"]
	if c, ok := raw["confidence"].(float64); ok {
		answer.Confidence = c
	} else if s, ok := raw["confidence"].(string); ok {
		// Some models answer "high"/"medium"/"low" despite the shape.
		switch strings.ToLower(s) {
		case "high":
			answer.Confidence = 0.9
		case "medium":
			answer.Confidence = 0.6
		case "low":
			answer.Confidence = 0.3
		default:
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				answer.Confidence = f
			}
		}
	}
	if answer.Confidence < 0 {
		answer.Confidence = 0
	}
	if answer.Confidence > 1 {
		answer.Confidence = 1
	}
	return answer, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
