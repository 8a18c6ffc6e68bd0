package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityKind is the syntactic category of a CodeEntity.
type EntityKind string

const (
	EntityFunction  EntityKind = "function"
	EntityMethod    EntityKind = "method"
	EntityClass     EntityKind = "class"
	EntityInterface EntityKind = "interface"
	EntityType      EntityKind = "type"
	EntityEnum      EntityKind = "enum"
	EntityVariable  EntityKind = "variable"
	EntityConstant  EntityKind = "constant"
	EntityModule    EntityKind = "module"
	EntityImport    EntityKind = "import"
)

// Visibility is the access level of a CodeEntity.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
	VisibilityInternal  Visibility = "internal"
)

// CodeEntity is a discrete named element extracted from one file.
type CodeEntity struct {
	ID            string     `json:"id" db:"id"`
	CodebaseID    string     `json:"codebase_id" db:"codebase_id"`
	Kind          EntityKind `json:"kind" db:"kind"`
	Name          string     `json:"name" db:"name"`
	QualifiedName string     `json:"qualified_name" db:"qualified_name"`
	FilePath      string     `json:"file_path" db:"file_path"`
	StartLine     int        `json:"start_line" db:"start_line"`
	EndLine       int        `json:"end_line" db:"end_line"`
	StartColumn   int        `json:"start_column" db:"start_column"`
	EndColumn     int        `json:"end_column" db:"end_column"`
	Language      string     `json:"language" db:"language"`
	Signature     string     `json:"signature,omitempty" db:"signature"`
	Visibility    Visibility `json:"visibility" db:"visibility"`
	Documentation string     `json:"documentation,omitempty" db:"documentation"`
	ASTHash       string     `json:"ast_hash,omitempty" db:"ast_hash"`
	EmbeddingID   string     `json:"embedding_id,omitempty" db:"embedding_id"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// NewCodeEntity builds an entity with a generated stable identifier.
func NewCodeEntity(codebaseID string, kind EntityKind, name, qualifiedName, filePath string) *CodeEntity {
	return &CodeEntity{
		ID:            uuid.New().String(),
		CodebaseID:    codebaseID,
		Kind:          kind,
		Name:          name,
		QualifiedName: qualifiedName,
		FilePath:      filePath,
		Visibility:    VisibilityPublic,
		CreatedAt:     time.Now().UTC(),
	}
}

// Validate enforces the §3 CodeEntity invariants.
func (e *CodeEntity) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("entity name must not be empty")
	}
	if strings.TrimSpace(e.QualifiedName) == "" {
		return fmt.Errorf("entity qualified_name must not be empty")
	}
	if strings.TrimSpace(e.FilePath) == "" {
		return fmt.Errorf("entity file_path must not be empty")
	}
	if filepath.IsAbs(e.FilePath) || strings.HasPrefix(e.FilePath, "/") {
		return fmt.Errorf("entity file_path %q must be relative", e.FilePath)
	}
	if e.StartLine < 1 {
		return fmt.Errorf("entity start_line must be >= 1, got %d", e.StartLine)
	}
	if e.EndLine < e.StartLine {
		return fmt.Errorf("entity end_line (%d) must be >= start_line (%d)", e.EndLine, e.StartLine)
	}
	return nil
}

// LineCount returns the number of lines spanned by the entity.
func (e *CodeEntity) LineCount() int {
	return e.EndLine - e.StartLine + 1
}

// HasDocumentation reports whether the entity carries documentation text.
func (e *CodeEntity) HasDocumentation() bool {
	return strings.TrimSpace(e.Documentation) != ""
}

// IsCallable reports whether the entity kind can be invoked.
func (e *CodeEntity) IsCallable() bool {
	return e.Kind == EntityFunction || e.Kind == EntityMethod
}

// IsTypeDefinition reports whether the entity kind introduces a type.
func (e *CodeEntity) IsTypeDefinition() bool {
	switch e.Kind {
	case EntityClass, EntityInterface, EntityType, EntityEnum:
		return true
	default:
		return false
	}
}

// ContainsLine reports whether the 1-indexed line falls within the entity.
func (e *CodeEntity) ContainsLine(line int) bool {
	return line >= e.StartLine && line <= e.EndLine
}

// Contains reports whether this entity's line range fully contains other's,
// the nesting relationship required by the disjoint-or-nested invariant.
func (e *CodeEntity) Contains(other *CodeEntity) bool {
	return e.StartLine <= other.StartLine && e.EndLine >= other.EndLine
}

// Overlaps reports whether two entities' line ranges intersect without one
// containing the other — a violation of the §3 nesting invariant.
func (e *CodeEntity) Overlaps(other *CodeEntity) bool {
	if e.Contains(other) || other.Contains(e) {
		return false
	}
	return e.StartLine <= other.EndLine && other.StartLine <= e.EndLine
}

// DisplayName returns the qualified name, falling back to the simple name.
func (e *CodeEntity) DisplayName() string {
	if e.QualifiedName != "" {
		return e.QualifiedName
	}
	return e.Name
}

// LocationString renders a "path:line" reference for logs and snippets.
func (e *CodeEntity) LocationString() string {
	return fmt.Sprintf("%s:%d", e.FilePath, e.StartLine)
}
