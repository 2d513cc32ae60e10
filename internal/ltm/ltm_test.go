package ltm

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ltm.md")
	store := New(path)

	empty, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.Append("user prefers dark mode", "noted during onboarding"))
	require.NoError(t, store.Append("project deadline", "2026-08-15"))

	content, err := store.Load()
	require.NoError(t, err)
	assert.Contains(t, content, "user prefers dark mode")
	assert.Contains(t, content, "project deadline")
	assert.Contains(t, content, "### [")
}
