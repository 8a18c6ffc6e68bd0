package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/codesight/internal/models"
)

func entity(name, qualified, doc string) *models.CodeEntity {
	return &models.CodeEntity{
		ID:            name,
		Name:          name,
		QualifiedName: qualified,
		Documentation: doc,
	}
}

func TestTokenizeSplitsOnDelimitersAndDropsShortTokens(t *testing.T) {
	tokens := Tokenize("Run(ctx, a); b.Stop()!")
	assert.Equal(t, []string{"run", "ctx", "stop"}, tokens)
}

func TestTokenizeEmptyQueryYieldsNoTokens(t *testing.T) {
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("   "))
}

func TestKeywordScoreExactNameBeatsContains(t *testing.T) {
	exact := entity("run", "pkg.run", "")
	contains := entity("runner", "pkg.runner", "")

	exactScore := KeywordScore(exact, []string{"run"})
	containsScore := KeywordScore(contains, []string{"run"})

	assert.Greater(t, exactScore, containsScore)
}

func TestKeywordScorePrefersQualifiedOverDocumentation(t *testing.T) {
	byQualified := entity("handler", "pkg.validate", "")
	byDoc := entity("handler", "pkg.other", "runs validate logic")

	assert.Greater(t, KeywordScore(byQualified, []string{"validate"}), KeywordScore(byDoc, []string{"validate"}))
}

func TestKeywordScoreNoMatchIsZero(t *testing.T) {
	e := entity("connect", "pkg.connect", "")
	assert.Zero(t, KeywordScore(e, []string{"unrelated"}))
}

func TestKeywordScorePenalizesLongerNames(t *testing.T) {
	short := entity("run", "pkg.run", "")
	long := entity("runTheEntireApplicationPipeline", "pkg.runTheEntireApplicationPipeline", "")

	assert.Greater(t, KeywordScore(short, []string{"run"}), KeywordScore(long, []string{"run"}))
}

func TestScoreKeywordEmptyQueryReturnsNoResults(t *testing.T) {
	entities := []*models.CodeEntity{entity("run", "pkg.run", "")}
	assert.Empty(t, ScoreKeyword(entities, ""))
}

func TestScoreKeywordDropsNonMatches(t *testing.T) {
	entities := []*models.CodeEntity{
		entity("run", "pkg.run", ""),
		entity("stop", "pkg.stop", ""),
	}
	results := ScoreKeyword(entities, "run")
	require.Len(t, results, 1)
	assert.Equal(t, "run", results[0].Entity.Name)
}

func TestMinMaxNormalizeRescalesToUnitRange(t *testing.T) {
	out := MinMaxNormalize([]float64{1, 2, 4})
	require.Len(t, out, 3)
	assert.InDelta(t, 0.0, out[0], 1e-9)
	assert.InDelta(t, 1.0/3, out[1], 1e-9)
	assert.InDelta(t, 1.0, out[2], 1e-9)
}

func TestMinMaxNormalizeUniformValuesAllOnes(t *testing.T) {
	out := MinMaxNormalize([]float64{5, 5, 5})
	for _, v := range out {
		assert.Equal(t, 1.0, v)
	}
}

func TestCombineHybridWeightsKeywordAndSemantic(t *testing.T) {
	candidates := []*Candidate{
		{Entity: entity("a", "a", ""), KeywordScore: 1.0, SemanticScore: 0.0, HasSemantic: true},
		{Entity: entity("b", "b", ""), KeywordScore: 0.0, SemanticScore: 1.0, HasSemantic: true},
	}
	CombineHybrid(candidates)

	assert.InDelta(t, KeywordWeight, candidates[0].HybridScore, 1e-9)
	assert.InDelta(t, SemanticWeight, candidates[1].HybridScore, 1e-9)
}

func TestCombineHybridTreatsMissingSemanticAsZero(t *testing.T) {
	candidates := []*Candidate{
		{Entity: entity("a", "a", ""), KeywordScore: 1.0, HasSemantic: false},
		{Entity: entity("b", "b", ""), KeywordScore: 0.0, HasSemantic: false},
	}
	CombineHybrid(candidates)

	assert.InDelta(t, KeywordWeight, candidates[0].HybridScore, 1e-9)
	assert.InDelta(t, 0.0, candidates[1].HybridScore, 1e-9)
}

func TestSortByHybridScoreBreaksTiesByMostRecentlyUpdated(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	a := entity("a", "a", "")
	a.UpdatedAt = &older
	b := entity("b", "b", "")
	b.UpdatedAt = &newer

	candidates := []*Candidate{
		{Entity: a, HybridScore: 0.5},
		{Entity: b, HybridScore: 0.5},
	}
	SortByHybridScore(candidates)

	assert.Equal(t, "b", candidates[0].Entity.Name)
}

func TestFilterByMinScoreDropsBelowThreshold(t *testing.T) {
	candidates := []*Candidate{
		{Entity: entity("a", "a", ""), HybridScore: 0.2},
		{Entity: entity("b", "b", ""), HybridScore: 0.8},
	}
	filtered := FilterByMinScore(candidates, 0.5)
	require.Len(t, filtered, 1)
	assert.Equal(t, "b", filtered[0].Entity.Name)
}

func TestPaginateReturnsWindow(t *testing.T) {
	candidates := make([]*Candidate, 5)
	for i := range candidates {
		candidates[i] = &Candidate{Entity: entity("e", "e", "")}
	}
	page := Paginate(candidates, 2, 2)
	assert.Len(t, page, 2)

	assert.Empty(t, Paginate(candidates, 10, 2))
}
