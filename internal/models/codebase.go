// Package models defines the persisted entities shared by storage, the
// indexer, and the search engine.
package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CodebaseStatus is the lifecycle state of a codebase.
type CodebaseStatus string

const (
	CodebaseUnindexed CodebaseStatus = "unindexed"
	CodebaseIndexing  CodebaseStatus = "indexing"
	CodebaseIndexed   CodebaseStatus = "indexed"
	CodebaseError     CodebaseStatus = "error"
)

// Codebase is a root being indexed.
type Codebase struct {
	ID              string            `json:"id" db:"id"`
	Name            string            `json:"name" db:"name"`
	RootPath        string            `json:"root_path" db:"root_path"`
	SizeBytes       int64             `json:"size_bytes" db:"size_bytes"`
	FileCount       int               `json:"file_count" db:"file_count"`
	LanguageStats   map[string]int    `json:"language_stats" db:"-"`
	IndexVersion    string            `json:"index_version" db:"index_version"`
	LastIndexedAt   *time.Time        `json:"last_indexed_at,omitempty" db:"last_indexed_at"`
	ConfigurationID string            `json:"configuration_id,omitempty" db:"configuration_id"`
	Status          CodebaseStatus    `json:"status" db:"status"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt       *time.Time        `json:"updated_at,omitempty" db:"updated_at"`
}

// NewCodebase creates a codebase rooted at an absolute path.
func NewCodebase(name, rootPath string) *Codebase {
	return &Codebase{
		ID:            uuid.New().String(),
		Name:          name,
		RootPath:      rootPath,
		LanguageStats: make(map[string]int),
		Status:        CodebaseUnindexed,
		CreatedAt:     time.Now().UTC(),
	}
}

// Validate enforces the invariants from §3: non-empty name, absolute root,
// and language counts that don't exceed the total file count.
func (c *Codebase) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("codebase name must not be empty")
	}
	if !filepath.IsAbs(c.RootPath) {
		return fmt.Errorf("codebase root %q must be an absolute path", c.RootPath)
	}
	sum := 0
	for _, n := range c.LanguageStats {
		sum += n
	}
	if sum > c.FileCount {
		return fmt.Errorf("language counts (%d) exceed file count (%d)", sum, c.FileCount)
	}
	return nil
}

// TransitionTo validates and applies a status transition, per the allowed
// edges Unindexed->Indexing->{Indexed,Error} and Indexed->Indexing.
func (c *Codebase) TransitionTo(next CodebaseStatus) error {
	allowed := map[CodebaseStatus][]CodebaseStatus{
		CodebaseUnindexed: {CodebaseIndexing},
		CodebaseIndexing:  {CodebaseIndexed, CodebaseError},
		CodebaseIndexed:   {CodebaseIndexing},
	}
	for _, ok := range allowed[c.Status] {
		if ok == next {
			now := time.Now().UTC()
			c.Status = next
			c.UpdatedAt = &now
			if next == CodebaseIndexed {
				c.LastIndexedAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("invalid codebase status transition %s -> %s", c.Status, next)
}

// PrimaryLanguage returns the language with the most files, if any.
func (c *Codebase) PrimaryLanguage() string {
	best, bestCount := "", -1
	for lang, n := range c.LanguageStats {
		if n > bestCount {
			best, bestCount = lang, n
		}
	}
	return best
}
