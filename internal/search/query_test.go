package search

import (
	"testing"
	"time"

	"github.com/hyperjump/codesight/internal/models"
)

func TestCacheKeyStableForEquivalentQueries(t *testing.T) {
	q1 := &models.Query{Text: "  Find   Widget  ", Kind: models.QueryKeyword, Intent: models.IntentFindFunction}
	q2 := &models.Query{Text: "find widget", Kind: models.QueryKeyword, Intent: models.IntentFindFunction}
	if CacheKey("cb1", q1) != CacheKey("cb1", q2) {
		t.Error("equivalent queries should hash to the same cache key")
	}
}

func TestCacheKeyDiffersByCodebase(t *testing.T) {
	q := &models.Query{Text: "widget", Kind: models.QueryKeyword, Intent: models.IntentDefault}
	if CacheKey("cb1", q) == CacheKey("cb2", q) {
		t.Error("different codebases should not share a cache key")
	}
}

func TestJaccardSimilarityIdenticalTextsIsOne(t *testing.T) {
	if got := JaccardSimilarity("find the running function", "find the running function"); got != 1 {
		t.Errorf("JaccardSimilarity = %v, want 1", got)
	}
}

func TestJaccardSimilarityStemsTokens(t *testing.T) {
	// "running"/"runs" both stem toward "run", so overlap should be high
	// despite the surface forms differing.
	got := JaccardSimilarity("running widgets", "runs widget")
	if got <= 0 {
		t.Errorf("JaccardSimilarity = %v, want > 0 for stemmed-equivalent text", got)
	}
}

func TestJaccardSimilarityEmptyVsNonEmptyIsZero(t *testing.T) {
	if got := JaccardSimilarity("", "widget"); got != 0 {
		t.Errorf("JaccardSimilarity = %v, want 0", got)
	}
}

func TestCacheTTLMinutesByIntent(t *testing.T) {
	cases := []struct {
		intent models.QueryIntent
		want   int
	}{
		{models.IntentFindFunction, 120},
		{models.IntentExplainCode, 30},
		{models.IntentTraceFlow, 30},
		{models.IntentSecurityAudit, 30},
		{models.IntentDefault, 60},
	}
	for _, c := range cases {
		if got := cacheTTLMinutes(c.intent, 60, 120, 30); got != c.want {
			t.Errorf("cacheTTLMinutes(%s) = %d, want %d", c.intent, got, c.want)
		}
	}
}

func TestEntityMatchesFiltersLanguageAndKind(t *testing.T) {
	e := &models.CodeEntity{Language: "Go", Kind: models.EntityFunction, Visibility: models.VisibilityPublic, FilePath: "pkg/util.go"}

	if !entityMatchesFilters(e, models.QueryFilters{}) {
		t.Error("empty filters should match everything")
	}
	if !entityMatchesFilters(e, models.QueryFilters{Languages: []string{"go"}}) {
		t.Error("language filter should match case-insensitively")
	}
	if entityMatchesFilters(e, models.QueryFilters{Languages: []string{"python"}}) {
		t.Error("mismatched language should be excluded")
	}
	if entityMatchesFilters(e, models.QueryFilters{EntityKinds: []models.EntityKind{models.EntityClass}}) {
		t.Error("mismatched entity kind should be excluded")
	}
	if !entityMatchesFilters(e, models.QueryFilters{PathGlobs: []string{"pkg/*.go"}}) {
		t.Error("matching path glob should be included")
	}
	if entityMatchesFilters(e, models.QueryFilters{PathGlobs: []string{"other/*.go"}}) {
		t.Error("non-matching path glob should be excluded")
	}
}

func TestEntityMatchesFiltersTimeBounds(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := &models.CodeEntity{CreatedAt: now}

	after := now.Add(-time.Hour)
	before := now.Add(time.Hour)
	if !entityMatchesFilters(e, models.QueryFilters{After: &after, Before: &before}) {
		t.Error("entity created within bounds should match")
	}

	tooLate := now.Add(-time.Minute)
	if entityMatchesFilters(e, models.QueryFilters{After: &before, Before: &tooLate}) {
		t.Error("impossible bounds should exclude the entity")
	}
}
