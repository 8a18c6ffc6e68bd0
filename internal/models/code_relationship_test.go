package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRelationshipValidate(t *testing.T) {
	r := NewCodeRelationship("e1", "e2", RelCalls, 0.9)
	assert.NoError(t, r.Validate())

	self := NewCodeRelationship("e1", "e1", RelCalls, 0.5)
	assert.Error(t, self.Validate())

	bad := NewCodeRelationship("e1", "e2", RelCalls, 1.5)
	assert.Error(t, bad.Validate())
}

func TestMergeRelationshipsDedupes(t *testing.T) {
	a := NewCodeRelationship("e1", "e2", RelCalls, 0.5)
	a.Context = "ctx-a"
	b := NewCodeRelationship("e1", "e2", RelCalls, 0.9)
	b.Context = "ctx-b"
	c := NewCodeRelationship("e1", "e3", RelCalls, 0.3)

	merged := MergeRelationships([]*CodeRelationship{a, b, c})
	assert.Len(t, merged, 2)

	var ab *CodeRelationship
	for _, r := range merged {
		if r.TargetEntityID == "e2" {
			ab = r
		}
	}
	assert.NotNil(t, ab)
	assert.Equal(t, 0.9, ab.Confidence)
	assert.Contains(t, ab.Context, "ctx-a")
	assert.Contains(t, ab.Context, "ctx-b")
}
