package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "memory.json")
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "jobs.example.com", DomainOf("https://jobs.example.com/postings/123"))
	assert.Equal(t, "careers.acme.io", DomainOf("http://careers.acme.io"))
	// Unparseable input falls back to the raw string.
	assert.Equal(t, "not a url", DomainOf("not a url"))
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	store := Open(tempStorePath(t))
	assert.Empty(t, store.Domains())
}

func TestOpenCorruptFileStartsEmpty(t *testing.T) {
	path := tempStorePath(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	store := Open(path)
	assert.Empty(t, store.Domains())

	// The corrupt file must still be replaceable on the next flush.
	store.UpsertFieldMapping("jobs.example.com", "work email", FieldMapping{
		Attribute:  "email",
		Confidence: 0.9,
		Source:     SourceAI,
	})
	require.NoError(t, store.Flush())

	reopened := Open(path)
	mappings := reopened.FieldMappings("jobs.example.com")
	assert.Equal(t, "email", mappings["work email"].Attribute)
}

func TestRecordSuccessRoundTrip(t *testing.T) {
	path := tempStorePath(t)
	store := Open(path)

	store.RecordSuccess("jobs.example.com", Strategy{
		Steps: []Step{{Action: "navigate"}, {Action: "fill", Detail: "Work Email"}, {Action: "submit"}},
		FieldMappings: map[string]FieldMapping{
			"work email": {Attribute: "email", Confidence: 0.9, Source: SourceAI},
		},
	})
	require.NoError(t, store.Flush())

	reopened := Open(path)
	strategy, ok := reopened.Load("jobs.example.com")
	require.True(t, ok)
	assert.Equal(t, "jobs.example.com", strategy.Domain)
	assert.Len(t, strategy.Steps, 3)
	assert.Equal(t, 1, strategy.SuccessCount)
	assert.InDelta(t, 0.10, strategy.ConfidenceBoost, 1e-9)
	assert.Equal(t, "email", strategy.FieldMappings["work email"].Attribute)

	successes, failures := reopened.History("jobs.example.com")
	assert.Len(t, successes, 1)
	assert.Empty(t, failures)
}

func TestRepeatedSuccessBoostsAndClamps(t *testing.T) {
	store := Open(tempStorePath(t))

	for i := 0; i < 15; i++ {
		store.RecordSuccess("jobs.example.com", Strategy{})
	}

	strategy, ok := store.Load("jobs.example.com")
	require.True(t, ok)
	assert.Equal(t, 15, strategy.SuccessCount)
	assert.Equal(t, 1.0, strategy.ConfidenceBoost)
}

func TestRecordFailureDecaysButNeverDeletes(t *testing.T) {
	store := Open(tempStorePath(t))
	store.RecordSuccess("jobs.example.com", Strategy{})

	for i := 0; i < 5; i++ {
		store.RecordFailure("jobs.example.com", FailureRecord{
			State: "SUBMIT",
			Kind:  "submission",
			Error: "portal rejected submission",
		})
	}

	strategy, ok := store.Load("jobs.example.com")
	require.True(t, ok, "strategy must survive failures")
	assert.Equal(t, 0.0, strategy.ConfidenceBoost, "boost floors at zero")

	_, failures := store.History("jobs.example.com")
	assert.Len(t, failures, 5)
}

func TestHistoryIsCapped(t *testing.T) {
	store := Open(tempStorePath(t))

	for i := 0; i < maxHistoryEntries+20; i++ {
		store.RecordFailure("jobs.example.com", FailureRecord{Kind: "browser_timeout"})
	}

	_, failures := store.History("jobs.example.com")
	assert.Len(t, failures, maxHistoryEntries)
}

func TestUpsertFieldMappingLastWriterWins(t *testing.T) {
	store := Open(tempStorePath(t))

	store.UpsertFieldMapping("jobs.example.com", "work email", FieldMapping{Attribute: "email", Confidence: 0.6, Source: SourceAI})
	store.UpsertFieldMapping("jobs.example.com", "work email", FieldMapping{Attribute: "email", Confidence: 0.9, Source: SourceMemory})

	mappings := store.FieldMappings("jobs.example.com")
	require.Len(t, mappings, 1)
	assert.InDelta(t, 0.9, mappings["work email"].Confidence, 1e-9)
	assert.Equal(t, SourceMemory, mappings["work email"].Source)
}

func TestLoadReturnsCopy(t *testing.T) {
	store := Open(tempStorePath(t))
	store.RecordSuccess("jobs.example.com", Strategy{
		FieldMappings: map[string]FieldMapping{"work email": {Attribute: "email", Confidence: 0.9}},
	})

	strategy, ok := store.Load("jobs.example.com")
	require.True(t, ok)
	strategy.FieldMappings["work email"] = FieldMapping{Attribute: "phone"}

	fresh, _ := store.Load("jobs.example.com")
	assert.Equal(t, "email", fresh.FieldMappings["work email"].Attribute)
}

func TestForget(t *testing.T) {
	store := Open(tempStorePath(t))
	store.RecordSuccess("jobs.example.com", Strategy{})

	assert.True(t, store.Forget("jobs.example.com"))
	assert.False(t, store.Forget("jobs.example.com"))
	_, ok := store.Load("jobs.example.com")
	assert.False(t, ok)
}
