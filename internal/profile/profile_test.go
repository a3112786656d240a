package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresEmail(t *testing.T) {
	_, err := New(map[string]string{"first_name": "Jane"})
	require.Error(t, err)

	p, err := New(map[string]string{"email": "jane@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", p.Get("email"))
}

func TestProfileIsACopy(t *testing.T) {
	attrs := map[string]string{"email": "jane@example.com"}
	p, err := New(attrs)
	require.NoError(t, err)

	attrs["email"] = "mallory@example.com"
	assert.Equal(t, "jane@example.com", p.Get("email"))
}

func TestGetNormalizesName(t *testing.T) {
	p, err := New(map[string]string{"email": "jane@example.com", "First_Name": "Jane"})
	require.NoError(t, err)

	assert.Equal(t, "Jane", p.Get("first_name"))
	assert.Equal(t, "Jane", p.Get(" FIRST_NAME "))
	assert.True(t, p.Has("first_name"))
	assert.False(t, p.Has("last_name"))
}

func TestAttributeNamesExcludesPasswordAndEmpty(t *testing.T) {
	p, err := New(map[string]string{
		"email":      "jane@example.com",
		"password":   "hunter2",
		"first_name": "Jane",
		"phone":      "",
	})
	require.NoError(t, err)

	names := p.AttributeNames()
	assert.Equal(t, []string{"email", "first_name"}, names)
}

func TestIsKnown(t *testing.T) {
	assert.True(t, IsKnown("email"))
	assert.True(t, IsKnown("resume_path"))
	assert.True(t, IsKnown(" EMAIL "))
	assert.False(t, IsKnown("shoe_size"))
}
