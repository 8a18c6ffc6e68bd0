package models

import (
	"fmt"
	"strings"
	"time"
)

// QueryKind is the search mode requested.
type QueryKind string

const (
	QueryKeyword    QueryKind = "keyword"
	QuerySemantic   QueryKind = "semantic"
	QueryRegex      QueryKind = "regex"
	QueryFuzzy      QueryKind = "fuzzy"
	QueryExact      QueryKind = "exact"
	QueryStructural QueryKind = "structural"
	QueryHybrid     QueryKind = "hybrid"
)

// QueryIntent routes a query to a particular search strategy (§4.5).
type QueryIntent string

const (
	IntentFindFunction  QueryIntent = "find_function"
	IntentExplainCode   QueryIntent = "explain_code"
	IntentFindUsage     QueryIntent = "find_usage"
	IntentTraceFlow     QueryIntent = "trace_flow"
	IntentSecurityAudit QueryIntent = "security_audit"
	IntentFindAPI       QueryIntent = "find_api"
	IntentDefault       QueryIntent = ""
)

// SortBy controls result ordering.
type SortBy string

const (
	SortByRelevance SortBy = "relevance"
	SortByUpdatedAt SortBy = "updated_at"
	SortByName      SortBy = "name"
)

// QueryFilters narrows the candidate entity set before scoring.
type QueryFilters struct {
	Languages   []string     `json:"languages,omitempty"`
	PathGlobs   []string     `json:"path_globs,omitempty"`
	EntityKinds []EntityKind `json:"entity_kinds,omitempty"`
	CodebaseIDs []string     `json:"codebase_ids,omitempty"`
	MinSize     int64        `json:"min_size,omitempty"`
	MaxSize     int64        `json:"max_size,omitempty"`
	After       *time.Time   `json:"after,omitempty"`
	Before      *time.Time   `json:"before,omitempty"`
	Visibility  []Visibility `json:"visibility,omitempty"`
	Custom      map[string]string `json:"custom,omitempty"`
}

// QueryOptions controls how results are assembled.
type QueryOptions struct {
	IncludeSnippets    bool    `json:"include_snippets"`
	IncludeRelationships bool  `json:"include_relationships"`
	IncludeMetadata    bool    `json:"include_metadata"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	MaxSnippetLength   int     `json:"max_snippet_length"`
	HighlightMatches   bool    `json:"highlight_matches"`
	SortBy             SortBy  `json:"sort_by"`
	UseCache           bool    `json:"use_cache"`
	Timeout            time.Duration `json:"timeout"`
}

// DefaultQueryOptions returns the spec's defaults: no snippets/highlighting,
// relevance sort, cache enabled, 30s timeout, max snippet 200 chars.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		MaxSnippetLength: 200,
		SortBy:           SortByRelevance,
		UseCache:         true,
		Timeout:          30 * time.Second,
	}
}

// Query is a search request.
type Query struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	Kind        QueryKind    `json:"kind"`
	Intent      QueryIntent  `json:"intent"`
	Filters     QueryFilters `json:"filters"`
	Options     QueryOptions `json:"options"`
	Limit       int          `json:"limit"`
	Offset      int          `json:"offset"`
	Initiator   string       `json:"initiator,omitempty"`
	SessionID   string       `json:"session_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ExecutedAt  *time.Time   `json:"executed_at,omitempty"`
}

const (
	minQueryTimeout = 0
	maxQueryTimeout = 300 * time.Second
)

// Validate normalizes limit/offset and enforces the §8 timeout boundary
// (timeout == 0 is rejected; timeout > 300s is rejected).
func (q *Query) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("query text must not be empty")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Options.Timeout == minQueryTimeout {
		return fmt.Errorf("query timeout must be > 0")
	}
	if q.Options.Timeout > maxQueryTimeout {
		return fmt.Errorf("query timeout %s exceeds maximum of %s", q.Options.Timeout, maxQueryTimeout)
	}
	if q.Options.MaxSnippetLength <= 0 {
		q.Options.MaxSnippetLength = 200
	}
	if q.Options.SortBy == "" {
		q.Options.SortBy = SortByRelevance
	}
	return nil
}

// NormalizeText lowercases, trims, and collapses internal whitespace, per
// §4.5. Applying it twice is idempotent.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
