package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ModelDescriptor identifies an embedding model and its capability limits.
type ModelDescriptor struct {
	Name             string `json:"name"`
	Provider         string `json:"provider"`
	OutputDimensions int    `json:"output_dimensions"`
	MaxInputLength   int    `json:"max_input_length"`
	SupportsBatching bool   `json:"supports_batching"`
	MaxBatchSize     int    `json:"max_batch_size,omitempty"`
}

// SourceLocation is optional provenance for an embedding.
type SourceLocation struct {
	FilePath string `json:"file_path,omitempty"`
	Language string `json:"language,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

// Embedding is a unit-length (after normalization) floating-point vector.
type Embedding struct {
	ID          string          `json:"id" db:"id"`
	EntityID    string          `json:"entity_id,omitempty" db:"entity_id"`
	ContentHash string          `json:"content_hash" db:"content_hash"`
	Model       ModelDescriptor `json:"model" db:"-"`
	Dimension   int             `json:"dimension" db:"dimension"`
	Vector      []float32       `json:"vector" db:"-"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	Source      *SourceLocation `json:"source,omitempty" db:"-"`
}

// NewEmbedding builds an embedding record with a generated identifier.
func NewEmbedding(contentHash string, vector []float32, model ModelDescriptor) *Embedding {
	return &Embedding{
		ID:          uuid.New().String(),
		ContentHash: contentHash,
		Model:       model,
		Dimension:   len(vector),
		Vector:      vector,
		CreatedAt:   time.Now().UTC(),
	}
}

// Validate enforces the §3 Embedding invariant: vector length equals
// dimension and every component is finite.
func (e *Embedding) Validate() error {
	if len(e.Vector) != e.Dimension {
		return fmt.Errorf("embedding vector length %d does not match dimension %d", len(e.Vector), e.Dimension)
	}
	for _, c := range e.Vector {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return fmt.Errorf("embedding vector contains a non-finite component")
		}
	}
	return nil
}

// IsNormalized reports whether the vector's L2 norm is within 1e-6 of 1.
func (e *Embedding) IsNormalized() bool {
	var sumSq float64
	for _, c := range e.Vector {
		sumSq += float64(c) * float64(c)
	}
	norm := math.Sqrt(sumSq)
	return math.Abs(norm-1.0) < 1e-6
}

// IsStale reports whether the embedding's age exceeds maxAge or its model
// descriptor no longer matches current.
func (e *Embedding) IsStale(maxAge time.Duration, current ModelDescriptor) bool {
	if time.Since(e.CreatedAt) > maxAge {
		return true
	}
	return e.Model != current
}
