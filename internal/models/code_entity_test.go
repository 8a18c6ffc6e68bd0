package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeEntityValidate(t *testing.T) {
	e := NewCodeEntity("cb1", EntityFunction, "f", "pkg.f", "a.ts")
	e.StartLine = 1
	e.EndLine = 3
	require.NoError(t, e.Validate())

	t.Run("empty name", func(t *testing.T) {
		bad := *e
		bad.Name = ""
		assert.Error(t, bad.Validate())
	})

	t.Run("absolute path rejected", func(t *testing.T) {
		bad := *e
		bad.FilePath = "/abs/a.ts"
		assert.Error(t, bad.Validate())
	})

	t.Run("end before start", func(t *testing.T) {
		bad := *e
		bad.StartLine = 5
		bad.EndLine = 2
		assert.Error(t, bad.Validate())
	})

	t.Run("start line zero rejected", func(t *testing.T) {
		bad := *e
		bad.StartLine = 0
		assert.Error(t, bad.Validate())
	})
}

func TestCodeEntityNesting(t *testing.T) {
	outer := NewCodeEntity("cb1", EntityClass, "C", "pkg.C", "a.ts")
	outer.StartLine, outer.EndLine = 1, 20
	inner := NewCodeEntity("cb1", EntityMethod, "m", "pkg.C.m", "a.ts")
	inner.StartLine, inner.EndLine = 5, 10

	assert.True(t, outer.Contains(inner))
	assert.False(t, outer.Overlaps(inner))

	sibling := NewCodeEntity("cb1", EntityFunction, "g", "pkg.g", "a.ts")
	sibling.StartLine, sibling.EndLine = 8, 15
	assert.True(t, inner.Overlaps(sibling))
}

func TestCodeEntityHelpers(t *testing.T) {
	e := NewCodeEntity("cb1", EntityFunction, "f", "pkg.f", "a.ts")
	e.StartLine, e.EndLine = 10, 15
	assert.Equal(t, 6, e.LineCount())
	assert.True(t, e.IsCallable())
	assert.False(t, e.IsTypeDefinition())
	assert.True(t, e.ContainsLine(12))
	assert.False(t, e.ContainsLine(20))
	assert.False(t, e.HasDocumentation())
	e.Documentation = "does things"
	assert.True(t, e.HasDocumentation())
}
