package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodebaseValidate(t *testing.T) {
	c := NewCodebase("demo", "/abs/path")
	require.NoError(t, c.Validate())

	c.RootPath = "relative/path"
	assert.Error(t, c.Validate())
}

func TestCodebaseLanguageSumInvariant(t *testing.T) {
	c := NewCodebase("demo", "/abs/path")
	c.FileCount = 2
	c.LanguageStats = map[string]int{"go": 1, "ts": 2}
	assert.Error(t, c.Validate())

	c.LanguageStats = map[string]int{"go": 1, "ts": 1}
	assert.NoError(t, c.Validate())
}

func TestCodebaseStatusTransitions(t *testing.T) {
	c := NewCodebase("demo", "/abs/path")
	require.NoError(t, c.TransitionTo(CodebaseIndexing))
	require.NoError(t, c.TransitionTo(CodebaseIndexed))
	assert.NotNil(t, c.LastIndexedAt)

	require.NoError(t, c.TransitionTo(CodebaseIndexing))
	assert.Error(t, c.TransitionTo(CodebaseUnindexed))
}

func TestPrimaryLanguage(t *testing.T) {
	c := NewCodebase("demo", "/abs/path")
	c.LanguageStats = map[string]int{"go": 3, "ts": 9}
	assert.Equal(t, "ts", c.PrimaryLanguage())
}
