package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RelationshipKind is the type of directed edge between two entities.
type RelationshipKind string

const (
	RelImports    RelationshipKind = "imports"
	RelCalls      RelationshipKind = "calls"
	RelExtends    RelationshipKind = "extends"
	RelImplements RelationshipKind = "implements"
	RelReferences RelationshipKind = "references"
	RelUses       RelationshipKind = "uses"
	RelDependsOn  RelationshipKind = "depends_on"
)

// CodeRelationship is a directed typed edge between two entities.
type CodeRelationship struct {
	ID             string           `json:"id" db:"id"`
	SourceEntityID string           `json:"source_entity_id" db:"source_entity_id"`
	TargetEntityID string           `json:"target_entity_id" db:"target_entity_id"`
	Kind           RelationshipKind `json:"kind" db:"kind"`
	Confidence     float64          `json:"confidence" db:"confidence"`
	Context        string           `json:"context,omitempty" db:"context"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

const maxRelationshipContextLen = 1000

// NewCodeRelationship builds a relationship with a generated identifier.
func NewCodeRelationship(source, target string, kind RelationshipKind, confidence float64) *CodeRelationship {
	return &CodeRelationship{
		ID:             uuid.New().String(),
		SourceEntityID: source,
		TargetEntityID: target,
		Kind:           kind,
		Confidence:     confidence,
		CreatedAt:      time.Now().UTC(),
	}
}

// Validate enforces the §3 CodeRelationship invariants.
func (r *CodeRelationship) Validate() error {
	if r.SourceEntityID == r.TargetEntityID {
		return fmt.Errorf("relationship source and target must differ")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("relationship confidence %f out of range [0,1]", r.Confidence)
	}
	if len(r.Context) > maxRelationshipContextLen {
		r.Context = r.Context[:maxRelationshipContextLen]
	}
	return nil
}

// dedupeKey identifies the (source,target,kind) triple used to merge
// duplicate relationships per §3.
func (r *CodeRelationship) dedupeKey() [3]string {
	return [3]string{r.SourceEntityID, r.TargetEntityID, string(r.Kind)}
}

// MergeRelationships collapses duplicate (source,target,kind) triples,
// keeping the higher confidence and the union of contexts.
func MergeRelationships(rels []*CodeRelationship) []*CodeRelationship {
	byKey := make(map[[3]string]*CodeRelationship, len(rels))
	order := make([][3]string, 0, len(rels))
	for _, r := range rels {
		key := r.dedupeKey()
		existing, ok := byKey[key]
		if !ok {
			clone := *r
			byKey[key] = &clone
			order = append(order, key)
			continue
		}
		if r.Confidence > existing.Confidence {
			existing.Confidence = r.Confidence
		}
		existing.Context = unionContext(existing.Context, r.Context)
	}
	merged := make([]*CodeRelationship, 0, len(order))
	for _, key := range order {
		merged = append(merged, byKey[key])
	}
	return merged
}

func unionContext(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" || a == b {
		return a
	}
	joined := a + "\n" + b
	if len(joined) > maxRelationshipContextLen {
		joined = joined[:maxRelationshipContextLen]
	}
	return joined
}
