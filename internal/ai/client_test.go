package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswerPlainJSON(t *testing.T) {
	answer, err := parseAnswer(OpenAI, `{"attribute": "email", "confidence": 0.85}`)
	require.NoError(t, err)
	assert.Equal(t, "email", answer.Attribute)
	assert.InDelta(t, 0.85, answer.Confidence, 1e-9)
}

func TestParseAnswerMarkdownFenced(t *testing.T) {
	text := "```json\n{\"attribute\": \"first_name\", \"confidence\": 0.7}\n```"
	answer, err := parseAnswer(Anthropic, text)
	require.NoError(t, err)
	assert.Equal(t, "first_name", answer.Attribute)
	assert.InDelta(t, 0.7, answer.Confidence, 1e-9)
}

func TestParseAnswerWithSurroundingProse(t *testing.T) {
	text := `Sure! Here is the mapping you asked for:
{"attribute": "phone", "confidence": 0.9}
Let me know if you need anything else.`
	answer, err := parseAnswer(Gemini, text)
	require.NoError(t, err)
	assert.Equal(t, "phone", answer.Attribute)
}

func TestParseAnswerWordConfidence(t *testing.T) {
	for word, want := range map[string]float64{"high": 0.9, "medium": 0.6, "low": 0.3} {
		answer, err := parseAnswer(Ollama, `{"attribute": "email", "confidence": "`+word+`"}`)
		require.NoError(t, err)
		assert.InDelta(t, want, answer.Confidence, 1e-9, "confidence word %q", word)
	}
}

func TestParseAnswerClampsConfidence(t *testing.T) {
	answer, err := parseAnswer(OpenAI, `{"attribute": "email", "confidence": 1.7}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, answer.Confidence)

	answer, err = parseAnswer(OpenAI, `{"attribute": "email", "confidence": -0.2}`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, answer.Confidence)
}

func TestParseAnswerNoJSON(t *testing.T) {
	_, err := parseAnswer(OpenAI, "I cannot determine the mapping.")
	require.Error(t, err)

	var perr *ProviderError
	assert.True(t, errors.As(err, &perr))
	assert.Equal(t, OpenAI, perr.Provider)
}

func TestParseAnswerExtraFields(t *testing.T) {
	answer, err := parseAnswer(OpenAI, `{"attribute": "email", "confidence": 0.8, "reason": "label mentions mail", "required": true}`)
	require.NoError(t, err)
	assert.Equal(t, "label mentions mail", answer.Fields["reason"])
	assert.Equal(t, "true", answer.Fields["required"])
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt(Request{
		Context:  "A form field labeled Work Email.",
		Question: "Which attribute fits?",
		Shape:    `{"attribute": "", "confidence": 0.0}`,
	})
	assert.Contains(t, prompt, "Context:")
	assert.Contains(t, prompt, "Work Email")
	assert.Contains(t, prompt, "Question: Which attribute fits?")
	assert.Contains(t, prompt, `{"attribute": "", "confidence": 0.0}`)
}

func TestNewClientUnsupportedProvider(t *testing.T) {
	_, err := NewClient(Config{Provider: "watson"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported AI provider")
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{Provider: OpenAI})
	require.Error(t, err)

	_, err = NewClient(Config{Provider: Anthropic})
	require.Error(t, err)

	// Ollama and mock need no key.
	_, err = NewClient(Config{Provider: Ollama})
	assert.NoError(t, err)
	_, err = NewClient(Config{Provider: Mock})
	assert.NoError(t, err)
}

func TestMockClientFIFO(t *testing.T) {
	mock := NewMockClient().
		Queue(&Answer{Attribute: "email", Confidence: 0.9}).
		QueueError(errors.New("boom"))

	first, err := mock.Ask(context.Background(), Request{Question: "one"})
	require.NoError(t, err)
	assert.Equal(t, "email", first.Attribute)

	_, err = mock.Ask(context.Background(), Request{Question: "two"})
	require.Error(t, err)

	// Exhausted queue answers with zero confidence.
	third, err := mock.Ask(context.Background(), Request{Question: "three"})
	require.NoError(t, err)
	assert.Zero(t, third.Confidence)

	assert.Equal(t, 3, mock.CallCount())
	assert.Equal(t, "one", mock.Calls()[0].Question)
}
