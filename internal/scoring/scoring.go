// Package scoring computes deterministic keyword and hybrid relevance scores
// for code entities, the same division of labor the teacher's ranking
// package keeps relative to keyword: candidates are retrieved by
// internal/keyword, then scored here by a dedicated formula.
package scoring

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/hyperjump/codesight/internal/models"
)

const (
	weightExactName     = 1.0
	weightExactQualified = 0.95
	weightPrefixName     = 0.9
	weightPrefixQualified = 0.85
	weightContainsName   = 0.7
	weightContainsQualified = 0.65
	weightContainsDoc    = 0.4

	// KeywordWeight and SemanticWeight combine into the hybrid score:
	// 0.4*keyword_norm + 0.6*semantic_norm.
	KeywordWeight  = 0.4
	SemanticWeight = 0.6
)

// Tokenize splits a query into lowercase tokens on whitespace and the
// delimiter set ( ) [ ] { } < > , ; : . ! ? , dropping tokens of length <= 1.
func Tokenize(query string) []string {
	isDelim := func(r rune) bool {
		if unicode.IsSpace(r) {
			return true
		}
		switch r {
		case '(', ')', '[', ']', '{', '}', '<', '>', ',', ';', ':', '.', '!', '?':
			return true
		}
		return false
	}

	fields := strings.FieldsFunc(query, isDelim)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ToLower(f)
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// tokenScore returns the single highest-weight match tier a token achieves
// against an entity's name, qualified name, and documentation.
func tokenScore(entity *models.CodeEntity, token string) float64 {
	name := strings.ToLower(entity.Name)
	qualified := strings.ToLower(entity.QualifiedName)
	doc := strings.ToLower(entity.Documentation)

	switch {
	case name == token:
		return weightExactName
	case qualified == token:
		return weightExactQualified
	case strings.HasPrefix(name, token):
		return weightPrefixName
	case strings.HasPrefix(qualified, token):
		return weightPrefixQualified
	case strings.Contains(name, token):
		return weightContainsName
	case strings.Contains(qualified, token):
		return weightContainsQualified
	case doc != "" && strings.Contains(doc, token):
		return weightContainsDoc
	default:
		return 0
	}
}

// KeywordScore computes the deterministic keyword relevance score of entity
// against an already-tokenized query: the sum of each token's best matching
// tier, minus a length penalty of ln(len(name))/10. Callers drop results
// whose score is <= 0.
func KeywordScore(entity *models.CodeEntity, tokens []string) float64 {
	if entity == nil || len(tokens) == 0 {
		return 0
	}

	var sum float64
	matched := false
	for _, token := range tokens {
		if s := tokenScore(entity, token); s > 0 {
			sum += s
			matched = true
		}
	}
	if !matched {
		return 0
	}

	nameLen := len(entity.Name)
	if nameLen < 1 {
		nameLen = 1
	}
	return sum - math.Log(float64(nameLen))/10
}

// Candidate pairs an entity with its component and combined relevance scores.
type Candidate struct {
	Entity        *models.CodeEntity
	KeywordScore  float64
	SemanticScore float64
	HasSemantic   bool
	HybridScore   float64
}

// ScoreKeyword tokenizes query and scores every entity, dropping non-positive
// results, and returns candidates sorted by keyword score descending.
func ScoreKeyword(entities []*models.CodeEntity, query string) []*Candidate {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	out := make([]*Candidate, 0, len(entities))
	for _, e := range entities {
		s := KeywordScore(e, tokens)
		if s <= 0 {
			continue
		}
		out = append(out, &Candidate{Entity: e, KeywordScore: s})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].KeywordScore > out[j].KeywordScore })
	return out
}

// MinMaxNormalize rescales values into [0, 1]. When every value is equal
// (including the single-element case), all outputs are 1.0 so a uniform
// score set does not vanish to zero under normalization.
func MinMaxNormalize(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	out := make([]float64, len(values))
	if max == min {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	span := max - min
	for i, v := range values {
		out[i] = (v - min) / span
	}
	return out
}

// CombineHybrid min-max normalizes the keyword and semantic scores across
// candidates independently, then sets each candidate's HybridScore to
// KeywordWeight*keyword_norm + SemanticWeight*semantic_norm. Candidates
// without a semantic score contribute 0 to the semantic component.
func CombineHybrid(candidates []*Candidate) {
	if len(candidates) == 0 {
		return
	}

	keywordVals := make([]float64, len(candidates))
	semanticVals := make([]float64, len(candidates))
	for i, c := range candidates {
		keywordVals[i] = c.KeywordScore
		if c.HasSemantic {
			semanticVals[i] = c.SemanticScore
		}
	}

	keywordNorm := MinMaxNormalize(keywordVals)
	semanticNorm := MinMaxNormalize(semanticVals)

	for i, c := range candidates {
		sem := 0.0
		if c.HasSemantic {
			sem = semanticNorm[i]
		}
		c.HybridScore = KeywordWeight*keywordNorm[i] + SemanticWeight*sem
	}
}

// SortByHybridScore orders candidates by HybridScore descending, breaking
// ties by the most recently updated entity first.
func SortByHybridScore(candidates []*Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].HybridScore != candidates[j].HybridScore {
			return candidates[i].HybridScore > candidates[j].HybridScore
		}
		ui, uj := candidates[i].Entity.UpdatedAt, candidates[j].Entity.UpdatedAt
		if ui == nil || uj == nil {
			return ui != nil
		}
		return ui.After(*uj)
	})
}

// FilterByMinScore drops candidates scoring below minScore.
func FilterByMinScore(candidates []*Candidate, minScore float64) []*Candidate {
	out := make([]*Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.HybridScore >= minScore {
			out = append(out, c)
		}
	}
	return out
}

// Paginate returns the [offset, offset+limit) slice of candidates.
func Paginate(candidates []*Candidate, offset, limit int) []*Candidate {
	if offset >= len(candidates) {
		return nil
	}
	end := offset + limit
	if end > len(candidates) || limit <= 0 {
		end = len(candidates)
	}
	return candidates[offset:end]
}
