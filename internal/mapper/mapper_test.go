package mapper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akashpal/jobwright/internal/ai"
	"github.com/akashpal/jobwright/internal/inspector"
	"github.com/akashpal/jobwright/internal/memory"
	"github.com/akashpal/jobwright/internal/profile"
)

func testProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p, err := profile.New(map[string]string{
		"email":       "jane@example.com",
		"password":    "hunter2",
		"first_name":  "Jane",
		"last_name":   "Doe",
		"phone":       "+1 555 0100",
		"resume_path": "/home/jane/resume.pdf",
	})
	require.NoError(t, err)
	return p
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "work email", NormalizeLabel("Work Email"))
	assert.Equal(t, "e mail", NormalizeLabel("E-mail:"))
	assert.Equal(t, "resume pdf", NormalizeLabel("Resume (PDF) *"))
	assert.Equal(t, "first name", NormalizeLabel("  First\tName  "))
}

func TestMemoryFastPathSkipsAI(t *testing.T) {
	mock := ai.NewMockClient()
	m := New(testProfile(t), mock)

	stored := map[string]memory.FieldMapping{
		"work email": {Attribute: "email", Confidence: 0.8, Source: memory.SourceAI},
	}
	fields := []inspector.FormField{
		{Selector: "#em", Kind: inspector.KindText, Label: "Work Email"},
	}

	result, err := m.Resolve(context.Background(), fields, stored, Options{Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, result.Resolved, 1)
	assert.Equal(t, "email", result.Resolved[0].Mapping.Attribute)
	assert.Equal(t, memory.SourceMemory, result.Resolved[0].Mapping.Source)
	assert.Zero(t, mock.CallCount(), "a remembered mapping must not consult the AI")
}

func TestLowConfidenceMemoryFallsThrough(t *testing.T) {
	mock := ai.NewMockClient().Queue(&ai.Answer{Attribute: "email", Confidence: 0.9})
	m := New(testProfile(t), mock)

	stored := map[string]memory.FieldMapping{
		"work email": {Attribute: "phone", Confidence: 0.2, Source: memory.SourceAI},
	}
	fields := []inspector.FormField{
		{Selector: "#em", Kind: inspector.KindText, Label: "Work Email"},
	}

	result, err := m.Resolve(context.Background(), fields, stored, Options{Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, result.Resolved, 1)
	assert.Equal(t, "email", result.Resolved[0].Mapping.Attribute)
	assert.Equal(t, memory.SourceAI, result.Resolved[0].Mapping.Source)
	assert.Equal(t, 1, mock.CallCount())
}

func TestHeuristicExactAndSynonym(t *testing.T) {
	mock := ai.NewMockClient()
	m := New(testProfile(t), mock)

	fields := []inspector.FormField{
		{Selector: "#fn", Kind: inspector.KindText, Label: "First Name"},
		{Selector: "#ph", Kind: inspector.KindPhone, Label: "Mobile"},
	}

	result, err := m.Resolve(context.Background(), fields, nil, Options{Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, result.Resolved, 2)
	assert.Equal(t, "first_name", result.Resolved[0].Mapping.Attribute)
	assert.Equal(t, "phone", result.Resolved[1].Mapping.Attribute)
	assert.Equal(t, memory.SourceHeuristic, result.Resolved[0].Mapping.Source)
	assert.Zero(t, mock.CallCount())
}

func TestFileKeywordHeuristicForUploads(t *testing.T) {
	mock := ai.NewMockClient()
	m := New(testProfile(t), mock)

	fields := []inspector.FormField{
		{Selector: "#cv", Kind: inspector.KindFile, Label: "Resume (PDF)"},
	}

	result, err := m.Resolve(context.Background(), fields, nil, Options{Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, result.Resolved, 1)
	assert.Equal(t, "resume_path", result.Resolved[0].Mapping.Attribute)
	assert.Zero(t, mock.CallCount())
}

func TestAIFallbackAcceptsAboveThreshold(t *testing.T) {
	mock := ai.NewMockClient().Queue(&ai.Answer{Attribute: "email", Confidence: 0.9})
	m := New(testProfile(t), mock)

	fields := []inspector.FormField{
		{Selector: "#em", Kind: inspector.KindText, Label: "Work Email"},
	}

	result, err := m.Resolve(context.Background(), fields, nil, Options{Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, result.Resolved, 1)
	assert.Equal(t, "email", result.Resolved[0].Mapping.Attribute)
	assert.Equal(t, memory.SourceAI, result.Resolved[0].Mapping.Source)
	assert.Equal(t, 1, result.AIQueries)
}

func TestAIFallbackRejectsBelowThreshold(t *testing.T) {
	mock := ai.NewMockClient().Queue(&ai.Answer{Attribute: "email", Confidence: 0.3})
	m := New(testProfile(t), mock)

	fields := []inspector.FormField{
		{Selector: "#x", Kind: inspector.KindText, Label: "Mystery Field", Required: true},
	}

	result, err := m.Resolve(context.Background(), fields, nil, Options{Threshold: 0.5})
	require.NoError(t, err)
	assert.Empty(t, result.Resolved)
	require.Len(t, result.Unmapped, 1)
	require.Len(t, result.RequiredUnmapped, 1)
	assert.Equal(t, "Mystery Field", result.RequiredUnmapped[0].Label)
}

func TestAIFallbackRejectsUnknownAttribute(t *testing.T) {
	mock := ai.NewMockClient().Queue(&ai.Answer{Attribute: "shoe_size", Confidence: 0.95})
	m := New(testProfile(t), mock)

	fields := []inspector.FormField{
		{Selector: "#x", Kind: inspector.KindText, Label: "Mystery Field"},
	}

	result, err := m.Resolve(context.Background(), fields, nil, Options{Threshold: 0.5})
	require.NoError(t, err)
	assert.Empty(t, result.Resolved)
	assert.Len(t, result.Unmapped, 1)
}

func TestAIErrorPropagates(t *testing.T) {
	wantErr := &ai.ProviderError{Provider: ai.Mock, Err: errors.New("timeout")}
	mock := ai.NewMockClient().QueueError(wantErr)
	m := New(testProfile(t), mock)

	fields := []inspector.FormField{
		{Selector: "#x", Kind: inspector.KindText, Label: "Mystery Field"},
	}

	_, err := m.Resolve(context.Background(), fields, nil, Options{Threshold: 0.5})
	require.Error(t, err)
	var perr *ai.ProviderError
	assert.True(t, errors.As(err, &perr))
}

func TestConflictHigherConfidenceWins(t *testing.T) {
	mock := ai.NewMockClient()
	m := New(testProfile(t), mock)

	stored := map[string]memory.FieldMapping{
		"primary email":   {Attribute: "email", Confidence: 0.9},
		"secondary email": {Attribute: "email", Confidence: 0.6},
	}
	fields := []inspector.FormField{
		{Selector: "#a", Kind: inspector.KindText, Label: "Secondary Email"},
		{Selector: "#b", Kind: inspector.KindText, Label: "Primary Email", Required: false},
	}

	result, err := m.Resolve(context.Background(), fields, stored, Options{Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, result.Resolved, 1)
	assert.Equal(t, "#b", result.Resolved[0].Field.Selector)
	require.Len(t, result.Unmapped, 1)
	assert.Equal(t, "#a", result.Unmapped[0].Selector)
}

func TestAuthOnlyResolvesCredentialsStructurally(t *testing.T) {
	mock := ai.NewMockClient()
	m := New(testProfile(t), mock)

	fields := []inspector.FormField{
		{Selector: "#user", Kind: inspector.KindEmail, Label: "Email"},
		{Selector: "#pass", Kind: inspector.KindPassword, Label: "Password"},
	}

	result, err := m.Resolve(context.Background(), fields, nil, Options{Threshold: 0.5, AuthOnly: true})
	require.NoError(t, err)
	require.Len(t, result.Resolved, 2)
	assert.Equal(t, "email", result.Resolved[0].Mapping.Attribute)
	assert.Equal(t, "password", result.Resolved[1].Mapping.Attribute)
	assert.Zero(t, mock.CallCount(), "auth mapping never consults the AI")
}

func TestPasswordNeverOfferedOutsideAuth(t *testing.T) {
	mock := ai.NewMockClient()
	m := New(testProfile(t), mock)

	stored := map[string]memory.FieldMapping{
		"secret": {Attribute: "password", Confidence: 0.9},
	}
	fields := []inspector.FormField{
		{Selector: "#s", Kind: inspector.KindText, Label: "Secret"},
	}

	result, err := m.Resolve(context.Background(), fields, stored, Options{Threshold: 0.5})
	require.NoError(t, err)
	assert.Empty(t, result.Resolved)
}
