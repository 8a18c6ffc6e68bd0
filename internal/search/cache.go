package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hyperjump/codesight/internal/cache"
	"github.com/hyperjump/codesight/internal/models"
)

// cachedResult is the JSON payload stored behind a result cache entry: the
// response plus enough of the originating query to support a fuzzy hit.
type cachedResult struct {
	Text     string                `json:"text"`
	Kind     models.QueryKind      `json:"kind"`
	Intent   models.QueryIntent    `json:"intent"`
	Response *models.QueryResponse `json:"response"`
}

// ResultCache wraps the §4.4 cache.Store for query results: exact-key hits
// by CacheKey, fuzzy hits by word-set Jaccard similarity over stemmed
// tokens, and intent-scaled TTLs.
type ResultCache struct {
	store          *cache.Store
	fuzzyThreshold float64
	ttlDefault     int
	ttlLong        int
	ttlShort       int
}

// NewResultCache builds a ResultCache over store, using the given fuzzy
// similarity threshold and per-intent TTLs (in minutes), per §4.5.
func NewResultCache(store *cache.Store, fuzzyThreshold float64, ttlDefaultMinutes, ttlLongMinutes, ttlShortMinutes int) *ResultCache {
	return &ResultCache{
		store:          store,
		fuzzyThreshold: fuzzyThreshold,
		ttlDefault:     ttlDefaultMinutes,
		ttlLong:        ttlLongMinutes,
		ttlShort:       ttlShortMinutes,
	}
}

// Get returns a cached response for q, trying an exact cache-key match
// first and falling back to a fuzzy match against same-codebase,
// same-kind, same-intent entries whose query text is similar enough.
func (rc *ResultCache) Get(ctx context.Context, codebaseID string, q *models.Query) (*models.QueryResponse, bool) {
	key := CacheKey(codebaseID, q)
	if data, ok, err := rc.store.Get(ctx, key); err == nil && ok {
		var cr cachedResult
		if err := json.Unmarshal(data, &cr); err == nil {
			return cr.Response, true
		}
	}

	normalized := NormalizeText(q.Text)
	var hit *cachedResult
	rc.store.Range(func(_ string, entry *models.CacheEntry) bool {
		if entry.Kind != models.CacheEntryQueryResult || entry.CodebaseID != codebaseID {
			return true
		}
		var cr cachedResult
		if err := json.Unmarshal(entry.Data, &cr); err != nil {
			return true
		}
		if cr.Kind != q.Kind || cr.Intent != q.Intent {
			return true
		}
		if JaccardSimilarity(normalized, cr.Text) >= rc.fuzzyThreshold {
			hit = &cr
			return false
		}
		return true
	})
	if hit != nil {
		return hit.Response, true
	}
	return nil, false
}

// Put stores resp under q's cache key, with a TTL scaled by q's intent.
func (rc *ResultCache) Put(ctx context.Context, codebaseID string, q *models.Query, resp *models.QueryResponse) error {
	payload := cachedResult{
		Text:     NormalizeText(q.Text),
		Kind:     q.Kind,
		Intent:   q.Intent,
		Response: resp,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	entry := models.NewCacheEntry(CacheKey(codebaseID, q), models.CacheEntryQueryResult, data, "application/json")
	entry.CodebaseID = codebaseID
	ttlMinutes := cacheTTLMinutes(q.Intent, rc.ttlDefault, rc.ttlLong, rc.ttlShort)
	entry.WithTTL(time.Duration(ttlMinutes) * time.Minute)
	return rc.store.Put(ctx, entry)
}
