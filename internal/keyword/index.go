// Package keyword provides keyword (BM25) search indexing and search over
// code entities.
package keyword

import (
	"context"

	"github.com/hyperjump/codesight/internal/models"
)

// KeywordIndex defines keyword search operations over code entities.
type KeywordIndex interface {
	Index(ctx context.Context, entity *models.CodeEntity) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}

// SearchOptions tunes retrieval behavior beyond a bare match query.
type SearchOptions struct {
	// NameBoost multiplies the score contribution of matches on an entity's
	// name, relative to its documentation/signature. The separate name/body
	// scoring path is used only when NameBoost or PhraseBoost is > 1.
	NameBoost float64
	// PhraseBoost multiplies the score of entities whose documentation or
	// name contains a multi-term query as an adjacent phrase. <= 1 disables it.
	PhraseBoost float64
	// Kinds restricts retrieval to entities whose kind is in this set. Empty
	// means no restriction.
	Kinds []models.EntityKind
}

// TermDictionary exposes the vocabulary and document frequencies a
// KeywordIndex has accumulated, for spell-checking and IDF calculations.
type TermDictionary interface {
	GetAllTerms() ([]string, error)
	GetTermFrequency(term string) (int, error)
	ContainsTerm(term string) (bool, error)
}
