// Package parser defines the narrow boundary the indexer uses to turn file
// contents into code entities. The core treats a Parser as total but
// fallible: a parse that hits malformed syntax still returns whatever
// entities it recovered, reporting the rest in Errors.
package parser

import "github.com/hyperjump/codesight/internal/models"

// Entity is one syntactic element recovered from a source file, shaped to
// map directly onto models.CodeEntity once the indexer assigns it a
// codebase and a stable ID.
type Entity struct {
	Name          string
	Kind          models.EntityKind
	StartLine     int
	EndLine       int
	StartColumn   int
	EndColumn     int
	Signature     string
	Documentation string
	Content       string
	Visibility    models.Visibility
}

// Import is a single import/require statement recovered from a file.
type Import struct {
	Path string
	Line int
}

// Export is a single named export recovered from a file, where the source
// language distinguishes exported from unexported symbols.
type Export struct {
	Name string
	Line int
}

// Result is the outcome of parsing one file. Errors is non-empty whenever
// the parser could not fully recover the file's structure; Entities may
// still hold whatever was salvaged up to the failure point.
type Result struct {
	Entities    []Entity
	Imports     []Import
	Exports     []Export
	Errors      []string
	ParseTimeMS int64
}

// Parser detects a file's language and extracts its code entities. Parser
// instances are never shared across goroutines; each indexing worker owns
// one (see internal/indexer).
type Parser interface {
	DetectLanguage(path string) (string, error)
	ParseFile(path string, content []byte) (*Result, error)
}
