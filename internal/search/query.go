package search

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/blevesearch/go-porterstemmer"

	"github.com/hyperjump/codesight/internal/models"
)

// NormalizeText lowercases, trims, and collapses whitespace, matching the
// normalization applied before a query's text becomes part of its cache key.
func NormalizeText(text string) string {
	return models.NormalizeText(text)
}

// CacheKey is a strong hash of the attributes that make two queries
// cache-equivalent: normalized text, codebase, kind, and intent.
func CacheKey(codebaseID string, q *models.Query) string {
	normalized := NormalizeText(q.Text)
	sum := sha256.Sum256([]byte(normalized + "|" + codebaseID + "|" + string(q.Kind) + "|" + string(q.Intent)))
	return hex.EncodeToString(sum[:])
}

// stemmedTokenSet tokenizes and Porter-stems text into a set, for the fuzzy
// cache hit's word-set Jaccard similarity.
func stemmedTokenSet(text string) map[string]struct{} {
	fields := strings.Fields(NormalizeText(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[porterstemmer.StemString(f)] = struct{}{}
	}
	return set
}

// JaccardSimilarity returns the word-set Jaccard measure over the stemmed
// tokens of a and b: |intersection| / |union|. Two empty texts are
// considered identical (similarity 1); one empty and one non-empty text has
// similarity 0.
func JaccardSimilarity(a, b string) float64 {
	setA := stemmedTokenSet(a)
	setB := stemmedTokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// cacheTTLMinutes resolves the result cache TTL in minutes for intent, per §4.5: long for
// FindFunction, short for ExplainCode/TraceFlow/SecurityAudit, default
// otherwise.
func cacheTTLMinutes(intent models.QueryIntent, defaultM, longM, shortM int) int {
	switch intent {
	case models.IntentFindFunction:
		return longM
	case models.IntentExplainCode, models.IntentTraceFlow, models.IntentSecurityAudit:
		return shortM
	default:
		return defaultM
	}
}

func entityMatchesFilters(e *models.CodeEntity, f models.QueryFilters) bool {
	if len(f.Languages) > 0 && !containsFold(f.Languages, e.Language) {
		return false
	}
	if len(f.EntityKinds) > 0 {
		matched := false
		for _, k := range f.EntityKinds {
			if k == e.Kind {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(f.Visibility) > 0 {
		matched := false
		for _, v := range f.Visibility {
			if v == e.Visibility {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if len(f.PathGlobs) > 0 && !anyGlobMatches(f.PathGlobs, e.FilePath) {
		return false
	}
	if f.After != nil && e.CreatedAt.Before(*f.After) {
		return false
	}
	if f.Before != nil && e.CreatedAt.After(*f.Before) {
		return false
	}
	return true
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func anyGlobMatches(globs []string, path string) bool {
	for _, g := range globs {
		if ok, err := filepath.Match(g, path); err == nil && ok {
			return true
		}
	}
	return false
}
