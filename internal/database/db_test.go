package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRecordAndQuery(t *testing.T) {
	db := Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NotNil(t, db)
	defer db.Close()

	now := time.Now().UTC()
	db.RecordAttempt(AttemptRow{
		ID:         "a1",
		JobURL:     "https://jobs.acme.com/postings/42",
		Domain:     "jobs.acme.com",
		Outcome:    "success",
		FinalState: "DONE",
		Retries:    1,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	})
	db.RecordAttempt(AttemptRow{
		ID:         "a2",
		JobURL:     "https://careers.other.io/jobs/7",
		Domain:     "careers.other.io",
		Outcome:    "failure",
		FinalState: "FAILED",
		Error:      "browser_timeout in state INIT",
		StartedAt:  now,
		FinishedAt: now.Add(time.Minute),
	})
	db.RecordAICall("a1", "anthropic", "field_mapping:2", true)

	rows, err := db.RecentAttempts("jobs.acme.com", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a1", rows[0].ID)
	assert.Equal(t, "success", rows[0].Outcome)
	assert.Equal(t, 1, rows[0].Retries)

	all, err := db.RecentAttempts("", 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "a2", all[0].ID, "newest first")
}

func TestNilDBIsSafe(t *testing.T) {
	var db *DB
	db.RecordAttempt(AttemptRow{ID: "x"})
	db.RecordAICall("x", "mock", "field_mapping:1", true)

	rows, err := db.RecentAttempts("", 10)
	assert.NoError(t, err)
	assert.Nil(t, rows)
	assert.NoError(t, db.Close())
}
