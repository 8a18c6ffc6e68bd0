// Package keyword provides Bleve implementation of KeywordIndex.
package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"

	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/codesight/internal/models"
)

// entityDoc is the shape indexed into Bleve for a code entity. It mirrors
// only the fields worth full-text retrieval; structural fields (line ranges,
// timestamps) stay in the SQLite store and are joined back by id.
type entityDoc struct {
	Name          string `json:"name"`
	QualifiedName string `json:"qualified_name"`
	Documentation string `json:"documentation"`
	Signature     string `json:"signature"`
	Kind          string `json:"kind"`
	CodebaseID    string `json:"codebase_id"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// If the path already exists, the existing index is opened and reused so that
// keyword search works with incremental sync (unchanged files are not re-indexed).
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Use standard analyzer (lowercase + tokenize, no stemming) so queries like "bayes" match
	// the exact word; English analyzer stems e.g. "Bayesian" -> "bayesi" and "bayes" -> "bay", so they don't match.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("qualified_name", textFieldMapping)
	docMapping.AddFieldMappingsAt("documentation", textFieldMapping)
	docMapping.AddFieldMappingsAt("signature", textFieldMapping)

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("kind", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("codebase_id", keywordFieldMapping)

	im.AddDocumentMapping("entity", docMapping)
	im.DefaultType = "entity"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index indexes a code entity by id, replacing any prior version.
func (b *BleveIndex) Index(ctx context.Context, entity *models.CodeEntity) error {
	doc := entityDoc{
		Name:          entity.Name,
		QualifiedName: entity.QualifiedName,
		Documentation: entity.Documentation,
		Signature:     entity.Signature,
		Kind:          string(entity.Kind),
		CodebaseID:    entity.CodebaseID,
	}
	return b.index.Index(entity.ID, doc)
}

// Search runs a match query and returns up to limit results.
// When opts is nil or both NameBoost and PhraseBoost are <= 1, a single match over all fields is used (original behavior).
// When either is > 1, we run separate name and body (documentation+signature) queries and merge
// with additive scoring, term coverage bonus, and phrase proximity boost for smarter multi-term ranking.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	nameBoost := 1.0
	phraseBoost := 1.0
	var kinds []models.EntityKind
	if opts != nil {
		if opts.NameBoost > 0 {
			nameBoost = opts.NameBoost
		}
		if opts.PhraseBoost > 0 {
			phraseBoost = opts.PhraseBoost
		}
		kinds = opts.Kinds
	}

	if nameBoost <= 1.0 && phraseBoost <= 1.0 {
		return b.searchSingle(ctx, query, limit, kinds)
	}
	return b.searchWithBoosts(ctx, query, limit, nameBoost, phraseBoost, kinds)
}

func kindQuery(kinds []models.EntityKind) *bleve.DisjunctionQuery {
	if len(kinds) == 0 {
		return nil
	}
	disj := bleve.NewDisjunctionQuery()
	for _, k := range kinds {
		tq := bleve.NewTermQuery(string(k))
		tq.SetField("kind")
		disj.AddQuery(tq)
	}
	return disj
}

func withKindFilter(q bleve.Query, kinds []models.EntityKind) bleve.Query {
	kq := kindQuery(kinds)
	if kq == nil {
		return q
	}
	return bleve.NewConjunctionQuery(q, kq)
}

// searchSingle runs one MatchQuery over all fields (original behavior).
func (b *BleveIndex) searchSingle(ctx context.Context, query string, limit int, kinds []models.EntityKind) ([]*KeywordResult, error) {
	q := withKindFilter(bleve.NewMatchQuery(query), kinds)
	search := bleve.NewSearchRequest(q)
	search.Size = limit
	search.Fields = []string{"*"}
	results, err := b.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

// searchWithBoosts runs smart multi-term search with:
// 1. Additive scoring: score = (nameScore * nameBoost) + bodyScore
// 2. Term coverage bonus: entities matching more query terms get higher scores
// 3. Phrase proximity boost: entities with adjacent query terms get boosted
func (b *BleveIndex) searchWithBoosts(ctx context.Context, query string, limit int, nameBoost, phraseBoost float64, kinds []models.EntityKind) ([]*KeywordResult, error) {
	// Request enough from each so merged top "limit" is correct (same entity can appear in both).
	reqSize := limit * 2
	if reqSize < 50 {
		reqSize = 50
	}

	// Tokenize query into terms for term coverage calculation
	terms := tokenizeQuery(query)
	numTerms := len(terms)

	// Run name and body (documentation+signature) queries
	nameMatch := bleve.NewMatchQuery(query)
	nameMatch.SetField("name")
	nameReq := bleve.NewSearchRequest(withKindFilter(nameMatch, kinds))
	nameReq.Size = reqSize
	nameReq.Fields = []string{"*"}

	bodyDisj := bleve.NewDisjunctionQuery()
	docQuery := bleve.NewMatchQuery(query)
	docQuery.SetField("documentation")
	sigQuery := bleve.NewMatchQuery(query)
	sigQuery.SetField("signature")
	bodyDisj.AddQuery(docQuery, sigQuery)
	bodyReq := bleve.NewSearchRequest(withKindFilter(bodyDisj, kinds))
	bodyReq.Size = reqSize
	bodyReq.Fields = []string{"*"}

	nameResults, err := b.index.Search(nameReq)
	if err != nil {
		return nil, fmt.Errorf("Bleve name search failed: %w", err)
	}
	bodyResults, err := b.index.Search(bodyReq)
	if err != nil {
		return nil, fmt.Errorf("Bleve body search failed: %w", err)
	}

	// Collect name and body scores separately for additive merge
	nameScores := make(map[string]float64)
	bodyScores := make(map[string]float64)

	for _, hit := range nameResults.Hits {
		nameScores[hit.ID] = hit.Score * nameBoost
	}
	for _, hit := range bodyResults.Hits {
		bodyScores[hit.ID] = hit.Score
	}

	// Calculate term coverage: for multi-term queries, count how many terms each entity matches
	termCoverage := make(map[string]int) // id -> number of matched terms
	if numTerms > 1 {
		termCoverage = b.calculateTermCoverage(terms, reqSize, kinds)
	}

	// Check for phrase matches if phraseBoost > 1 and query has multiple terms
	phraseMatches := make(map[string]bool)
	if phraseBoost > 1.0 && numTerms > 1 {
		phraseMatches = b.findPhraseMatches(query, reqSize, kinds)
	}

	// Merge scores: ADDITIVE (name + body) * termCoverageMultiplier * phraseMultiplier
	scores := make(map[string]float64)
	allIDs := make(map[string]struct{})
	for id := range nameScores {
		allIDs[id] = struct{}{}
	}
	for id := range bodyScores {
		allIDs[id] = struct{}{}
	}

	for id := range allIDs {
		// Additive: name + body (both can contribute)
		baseScore := nameScores[id] + bodyScores[id]

		// Term coverage multiplier: PENALIZE entities that don't match all terms
		// Formula: (matched/total)^2 - this heavily penalizes partial matches
		// - 2/2 terms: (1.0)^2 = 1.0 (no penalty)
		// - 1/2 terms: (0.5)^2 = 0.25 (75% penalty!)
		// - 1/3 terms: (0.33)^2 = 0.11 (89% penalty!)
		// This ensures entities matching ALL query terms rank higher than partial matches
		termCoverageMultiplier := 1.0
		if numTerms > 1 {
			matched := termCoverage[id]
			if matched == 0 {
				matched = 1 // at least matched once to be in results
			}
			coverage := float64(matched) / float64(numTerms)
			termCoverageMultiplier = coverage * coverage // squared penalty
		}

		// Phrase boost multiplier
		phraseMultiplier := 1.0
		if phraseMatches[id] {
			phraseMultiplier = phraseBoost
		}

		scores[id] = baseScore * termCoverageMultiplier * phraseMultiplier
	}

	// Sort by score desc and take top limit
	type scored struct {
		id    string
		score float64
	}
	merged := make([]scored, 0, len(scores))
	for id, score := range scores {
		merged = append(merged, scored{id: id, score: score})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].score > merged[j].score })
	if len(merged) > limit {
		merged = merged[:limit]
	}

	out := make([]*KeywordResult, len(merged))
	for i, s := range merged {
		out[i] = &KeywordResult{ID: s.id, Score: s.score}
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms, filtering out empty strings.
func tokenizeQuery(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w != "" {
			terms = append(terms, w)
		}
	}
	return terms
}

// calculateTermCoverage counts how many unique query terms each entity matches.
func (b *BleveIndex) calculateTermCoverage(terms []string, reqSize int, kinds []models.EntityKind) map[string]int {
	coverage := make(map[string]int)
	for _, term := range terms {
		// Run a match query for each individual term
		q := withKindFilter(bleve.NewMatchQuery(term), kinds)
		req := bleve.NewSearchRequest(q)
		req.Size = reqSize
		results, err := b.index.Search(req)
		if err != nil {
			continue
		}
		for _, hit := range results.Hits {
			coverage[hit.ID]++
		}
	}
	return coverage
}

// findPhraseMatches finds entities where the query appears as a phrase (adjacent terms).
func (b *BleveIndex) findPhraseMatches(query string, reqSize int, kinds []models.EntityKind) map[string]bool {
	matches := make(map[string]bool)

	// MatchPhraseQuery runs the query through the field's analyzer and
	// matches the resulting terms as an adjacent, in-order phrase.
	docPhraseQuery := bleve.NewMatchPhraseQuery(query)
	docPhraseQuery.SetField("documentation")
	req := bleve.NewSearchRequest(withKindFilter(docPhraseQuery, kinds))
	req.Size = reqSize
	results, err := b.index.Search(req)
	if err == nil {
		for _, hit := range results.Hits {
			matches[hit.ID] = true
		}
	}

	// Also check name field for phrase matches
	namePhraseQuery := bleve.NewMatchPhraseQuery(query)
	namePhraseQuery.SetField("name")
	nameReq := bleve.NewSearchRequest(withKindFilter(namePhraseQuery, kinds))
	nameReq.Size = reqSize
	nameResults, err := b.index.Search(nameReq)
	if err != nil {
		return matches
	}
	for _, hit := range nameResults.Hits {
		matches[hit.ID] = true
	}

	return matches
}

// Delete removes an entity from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of entities in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// GetTermDocFrequency returns the number of entities containing the given term.
// This is useful for IDF (Inverse Document Frequency) calculation.
func (b *BleveIndex) GetTermDocFrequency(term string) (int, error) {
	// Search for the term and count unique entities
	q := bleve.NewMatchQuery(term)
	req := bleve.NewSearchRequest(q)
	req.Size = 10000 // Get all matching entities for accurate count
	results, err := b.index.Search(req)
	if err != nil {
		return 0, fmt.Errorf("failed to search for term frequency: %w", err)
	}
	return int(results.Total), nil
}

// GetCorpusStats returns corpus-level statistics for a set of terms.
// Returns total entity count and document frequencies for each term.
func (b *BleveIndex) GetCorpusStats(terms []string) (totalDocs int, docFreqs map[string]int, err error) {
	// Get total entity count
	count, err := b.DocCount()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get doc count: %w", err)
	}
	totalDocs = int(count)

	// Get document frequency for each term
	docFreqs = make(map[string]int, len(terms))
	for _, term := range terms {
		freq, err := b.GetTermDocFrequency(term)
		if err != nil {
			// Log error but continue with other terms
			docFreqs[term] = 0
			continue
		}
		docFreqs[term] = freq
	}

	return totalDocs, docFreqs, nil
}

// GetAllTerms returns the name-field vocabulary accumulated by the index,
// satisfying TermDictionary for spell-check suggestion lookups.
func (b *BleveIndex) GetAllTerms() ([]string, error) {
	dict, err := b.index.FieldDict("name")
	if err != nil {
		return nil, fmt.Errorf("open field dictionary: %w", err)
	}
	defer dict.Close()

	var terms []string
	for {
		entry, err := dict.Next()
		if err != nil {
			return nil, fmt.Errorf("iterate field dictionary: %w", err)
		}
		if entry == nil {
			break
		}
		terms = append(terms, entry.Term)
	}
	return terms, nil
}

// GetTermFrequency implements TermDictionary via the same document-frequency
// count used for IDF calculation.
func (b *BleveIndex) GetTermFrequency(term string) (int, error) {
	return b.GetTermDocFrequency(term)
}

// ContainsTerm implements TermDictionary.
func (b *BleveIndex) ContainsTerm(term string) (bool, error) {
	freq, err := b.GetTermDocFrequency(term)
	if err != nil {
		return false, err
	}
	return freq > 0, nil
}

var (
	_ KeywordIndex   = (*BleveIndex)(nil)
	_ TermDictionary = (*BleveIndex)(nil)
)
