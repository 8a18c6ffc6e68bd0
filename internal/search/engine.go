package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/codesight/internal/config"
	"github.com/hyperjump/codesight/internal/embedding"
	"github.com/hyperjump/codesight/internal/keyword"
	"github.com/hyperjump/codesight/internal/models"
	"github.com/hyperjump/codesight/internal/scoring"
	"github.com/hyperjump/codesight/internal/storage"
	"github.com/hyperjump/codesight/internal/vector"
)

// Engine executes queries against a codebase's keyword index, vector
// index, and relationship graph, routing by intent, scoring candidates
// through internal/scoring, and caching responses.
type Engine struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.VectorIndex
	keywordIndex keyword.KeywordIndex
	resultCache  *ResultCache
	cfg          config.SearchConfig
	logger       *zap.Logger
}

// NewEngine constructs an Engine. logger may be nil.
func NewEngine(
	st storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	keywordIndex keyword.KeywordIndex,
	resultCache *ResultCache,
	cfg config.SearchConfig,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		storage:      st,
		embedder:     embedder,
		vectorIndex:  vectorIndex,
		keywordIndex: keywordIndex,
		resultCache:  resultCache,
		cfg:          cfg,
		logger:       logger,
	}
}

// Search executes q against codebaseID, applying the intent routing table,
// cache lookup/write-back, and the deadline carried by q.Options.Timeout.
func (eng *Engine) Search(ctx context.Context, codebaseID string, q *models.Query) (*models.QueryResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q.Text = NormalizeText(q.Text)

	if q.Options.UseCache {
		if resp, ok := eng.resultCache.Get(ctx, codebaseID, q); ok {
			cached := *resp
			cached.FromCache = true
			return &cached, nil
		}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, q.Options.Timeout)
	defer cancel()

	candidates, timedOut, err := eng.routeAndScore(ctx, codebaseID, q)
	if err != nil && !timedOut {
		return nil, err
	}

	resp := eng.assemble(ctx, codebaseID, q, candidates)
	resp.TimedOut = timedOut
	resp.ExecutionTimeMs = time.Since(start).Milliseconds()

	if q.Options.UseCache && !timedOut {
		if err := eng.resultCache.Put(ctx, codebaseID, q, resp); err != nil {
			eng.logger.Warn("cache write failed", zap.Error(err))
		}
	}
	return resp, nil
}

// routeAndScore dispatches q to the strategy its intent implies, returning
// hybrid-scored candidates sorted best first. timedOut is true when the
// context deadline was hit partway through candidate retrieval; whatever
// candidates were gathered before the deadline are still returned.
func (eng *Engine) routeAndScore(ctx context.Context, codebaseID string, q *models.Query) ([]*scoring.Candidate, bool, error) {
	switch q.Intent {
	case models.IntentFindFunction:
		return eng.keywordOnly(ctx, codebaseID, q, []models.EntityKind{models.EntityFunction, models.EntityMethod})
	case models.IntentExplainCode:
		return eng.semanticOnly(ctx, codebaseID, q)
	case models.IntentTraceFlow:
		return eng.graphWalk(ctx, codebaseID, q, false)
	case models.IntentFindUsage:
		return eng.graphWalk(ctx, codebaseID, q, true)
	case models.IntentSecurityAudit:
		return eng.securityAudit(ctx, codebaseID, q)
	case models.IntentFindAPI:
		// No api_endpoint record exists in the data model; the nearest
		// honest behavior is FindFunction's restricted keyword search,
		// since HTTP handlers are themselves functions/methods.
		return eng.keywordOnly(ctx, codebaseID, q, []models.EntityKind{models.EntityFunction, models.EntityMethod})
	default:
		return eng.hybrid(ctx, codebaseID, q)
	}
}

func (eng *Engine) keywordOnly(ctx context.Context, codebaseID string, q *models.Query, kinds []models.EntityKind) ([]*scoring.Candidate, bool, error) {
	hits, err := eng.keywordIndex.Search(ctx, q.Text, eng.cfg.TopKCandidates, &keyword.SearchOptions{Kinds: kinds})
	if err != nil {
		if ctx.Err() != nil {
			return nil, true, nil
		}
		return nil, false, err
	}

	candidates := make([]*scoring.Candidate, 0, len(hits))
	for _, h := range hits {
		e, err := eng.storage.GetEntity(ctx, h.ID)
		if err != nil || e == nil || !entityMatchesFilters(e, q.Filters) {
			continue
		}
		candidates = append(candidates, &scoring.Candidate{Entity: e, KeywordScore: h.Score})
	}
	scoring.CombineHybrid(candidates)
	scoring.SortByHybridScore(candidates)
	return candidates, ctx.Err() != nil, nil
}

func (eng *Engine) semanticOnly(ctx context.Context, codebaseID string, q *models.Query) ([]*scoring.Candidate, bool, error) {
	vec, err := eng.embedder.Embed(ctx, q.Text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, true, nil
		}
		return nil, false, err
	}
	hits, err := eng.vectorIndex.Search(ctx, vec, eng.cfg.TopKCandidates)
	if err != nil {
		if ctx.Err() != nil {
			return nil, true, nil
		}
		return nil, false, err
	}

	threshold := eng.semanticThreshold(q)
	candidates := make([]*scoring.Candidate, 0, len(hits))
	for _, h := range hits {
		if h.Score < threshold {
			continue
		}
		e, err := eng.storage.GetEntity(ctx, h.ID)
		if err != nil || e == nil || !entityMatchesFilters(e, q.Filters) {
			continue
		}
		candidates = append(candidates, &scoring.Candidate{Entity: e, SemanticScore: h.Score, HasSemantic: true})
	}
	scoring.CombineHybrid(candidates)
	scoring.SortByHybridScore(candidates)
	return candidates, ctx.Err() != nil, nil
}

// semanticThreshold returns the query's own similarity floor, falling back
// to the configured default when the query leaves it unset.
func (eng *Engine) semanticThreshold(q *models.Query) float64 {
	if q.Options.SimilarityThreshold > 0 {
		return q.Options.SimilarityThreshold
	}
	return eng.cfg.DefaultMinSemanticScore
}

func (eng *Engine) hybrid(ctx context.Context, codebaseID string, q *models.Query) ([]*scoring.Candidate, bool, error) {
	byID := make(map[string]*scoring.Candidate)

	hits, err := eng.keywordIndex.Search(ctx, q.Text, eng.cfg.TopKCandidates, nil)
	if err != nil && ctx.Err() == nil {
		return nil, false, err
	}
	for _, h := range hits {
		e, err := eng.storage.GetEntity(ctx, h.ID)
		if err != nil || e == nil || !entityMatchesFilters(e, q.Filters) {
			continue
		}
		byID[h.ID] = &scoring.Candidate{Entity: e, KeywordScore: h.Score}
	}

	if ctx.Err() == nil {
		threshold := eng.semanticThreshold(q)
		if vec, err := eng.embedder.Embed(ctx, q.Text); err == nil {
			if vhits, err := eng.vectorIndex.Search(ctx, vec, eng.cfg.TopKCandidates); err == nil {
				for _, h := range vhits {
					if h.Score < threshold {
						continue
					}
					if c, ok := byID[h.ID]; ok {
						c.SemanticScore = h.Score
						c.HasSemantic = true
						continue
					}
					e, err := eng.storage.GetEntity(ctx, h.ID)
					if err != nil || e == nil || !entityMatchesFilters(e, q.Filters) {
						continue
					}
					byID[h.ID] = &scoring.Candidate{Entity: e, SemanticScore: h.Score, HasSemantic: true}
				}
			}
		}
	}

	candidates := make([]*scoring.Candidate, 0, len(byID))
	for _, c := range byID {
		candidates = append(candidates, c)
	}
	scoring.CombineHybrid(candidates)
	scoring.SortByHybridScore(candidates)
	return candidates, ctx.Err() != nil, nil
}

// securityAudit augments the query with curated security-relevant tokens
// before running the same keyword+semantic hybrid retrieval.
func (eng *Engine) securityAudit(ctx context.Context, codebaseID string, q *models.Query) ([]*scoring.Candidate, bool, error) {
	augmented := *q
	augmented.Text = q.Text
	for _, tok := range eng.cfg.SecurityAuditTokens {
		augmented.Text += " " + tok
	}
	return eng.hybrid(ctx, codebaseID, &augmented)
}

func (eng *Engine) graphWalk(ctx context.Context, codebaseID string, q *models.Query, usage bool) ([]*scoring.Candidate, bool, error) {
	seed, err := eng.keywordOnly(ctx, codebaseID, q, nil)
	if err != nil {
		return nil, false, err
	}
	if len(seed) == 0 {
		return nil, ctx.Err() != nil, nil
	}

	var entities []*models.CodeEntity
	var walkErr error
	if usage {
		entities, walkErr = FindUsage(ctx, eng.storage, seed[0].Entity.ID)
	} else {
		entities, walkErr = TraceFlow(ctx, eng.storage, seed[0].Entity.ID, traceFlowMaxDepth)
	}
	if walkErr != nil && ctx.Err() == nil {
		return nil, false, walkErr
	}

	candidates := make([]*scoring.Candidate, 0, len(entities)+1)
	candidates = append(candidates, seed[0])
	for i, e := range entities {
		if !entityMatchesFilters(e, q.Filters) {
			continue
		}
		// Graph-distance entities rank below the seed and by proximity.
		candidates = append(candidates, &scoring.Candidate{Entity: e, KeywordScore: 1.0 / float64(i+2)})
	}
	scoring.CombineHybrid(candidates)
	return candidates, ctx.Err() != nil, nil
}

// assemble turns scored candidates into a paginated QueryResponse, adding
// snippets and highlighting per q.Options.
func (eng *Engine) assemble(ctx context.Context, codebaseID string, q *models.Query, candidates []*scoring.Candidate) *models.QueryResponse {
	filtered := scoring.FilterByMinScore(candidates, eng.cfg.DefaultMinKeywordScore)
	total := len(filtered)
	page := scoring.Paginate(filtered, q.Offset, q.Limit)

	cb, err := eng.storage.GetCodebase(ctx, codebaseID)
	root := ""
	if err == nil && cb != nil {
		root = cb.RootPath
	}

	results := make([]*models.QueryResult, 0, len(page))
	for _, c := range page {
		r := &models.QueryResult{
			EntityID:    c.Entity.ID,
			Name:        c.Entity.Name,
			Kind:        c.Entity.Kind,
			Score:       models.Clamp01(c.HybridScore),
			FilePath:    c.Entity.FilePath,
			StartLine:   c.Entity.StartLine,
			StartColumn: c.Entity.StartColumn,
		}
		if q.Options.IncludeSnippets && root != "" {
			snippet := ExtractSnippet(root, c.Entity, q.Options.MaxSnippetLength)
			r.Snippet = snippet
			if q.Options.HighlightMatches {
				r.Highlighted = Highlight(snippet, q.Text)
			}
		} else if q.Options.HighlightMatches {
			r.Highlighted = Highlight(c.Entity.Name, q.Text)
		}
		results = append(results, r)
	}

	return &models.QueryResponse{
		Results:    results,
		TotalCount: total,
		HasMore:    q.Offset+len(page) < total,
	}
}
