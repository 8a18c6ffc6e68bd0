package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IndexKind is the type of secondary structure built over a codebase.
type IndexKind string

const (
	IndexKeyword  IndexKind = "keyword"
	IndexAST      IndexKind = "ast"
	IndexSemantic IndexKind = "semantic"
	IndexVector   IndexKind = "vector"
)

// IndexStatus is the lifecycle state of an Index.
type IndexStatus string

const (
	IndexBuilding   IndexStatus = "building"
	IndexReady      IndexStatus = "ready"
	IndexCorrupted  IndexStatus = "corrupted"
	IndexRebuilding IndexStatus = "rebuilding"
)

// Index is a secondary structure built over a codebase.
type Index struct {
	ID         string                 `json:"id" db:"id"`
	CodebaseID string                 `json:"codebase_id" db:"codebase_id"`
	Kind       IndexKind              `json:"kind" db:"kind"`
	Status     IndexStatus            `json:"status" db:"status"`
	SizeBytes  int64                  `json:"size_bytes" db:"size_bytes"`
	EntryCount int64                  `json:"entry_count" db:"entry_count"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"-"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  *time.Time             `json:"updated_at,omitempty" db:"updated_at"`
}

// NewIndex builds an index descriptor with a generated identifier.
func NewIndex(codebaseID string, kind IndexKind) *Index {
	return &Index{
		ID:         uuid.New().String(),
		CodebaseID: codebaseID,
		Kind:       kind,
		Status:     IndexBuilding,
		Metadata:   make(map[string]interface{}),
		CreatedAt:  time.Now().UTC(),
	}
}

// Validate enforces entry_count > 0 => size_bytes > 0.
func (idx *Index) Validate() error {
	if idx.EntryCount > 0 && idx.SizeBytes <= 0 {
		return fmt.Errorf("index with %d entries must have positive size_bytes", idx.EntryCount)
	}
	return nil
}
