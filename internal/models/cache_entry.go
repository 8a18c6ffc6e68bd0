package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// CacheEntryType is the kind of value a CacheEntry holds.
type CacheEntryType string

const (
	CacheEntryQueryResult   CacheEntryType = "query_result"
	CacheEntryEmbedding     CacheEntryType = "embedding"
	CacheEntryParsedAST     CacheEntryType = "parsed_ast"
	CacheEntryIndexData     CacheEntryType = "index_data"
	CacheEntryFileContent   CacheEntryType = "file_content"
	CacheEntryCodeSnippet   CacheEntryType = "code_snippet"
	CacheEntrySearchResult  CacheEntryType = "search_result"
	CacheEntryConfiguration CacheEntryType = "configuration"
	CacheEntryMetadata      CacheEntryType = "metadata"
	CacheEntryTemporary     CacheEntryType = "temporary"
	CacheEntrySession       CacheEntryType = "session"
	CacheEntryAPIResponse   CacheEntryType = "api_response"
)

// CompressionType identifies how an entry's bytes were compressed.
type CompressionType string

const (
	CompressionNone CompressionType = "none"
	CompressionGzip CompressionType = "gzip"
)

// CachePriority affects both eviction scoring and whether an entry is
// exempt from eviction entirely.
type CachePriority string

const (
	PriorityLow      CachePriority = "low"
	PriorityNormal   CachePriority = "normal"
	PriorityHigh     CachePriority = "high"
	PriorityCritical CachePriority = "critical"
)

// EvictionPolicy names the scoring strategy used to pick eviction victims.
type EvictionPolicy string

const (
	EvictionLRU      EvictionPolicy = "lru"
	EvictionLFU      EvictionPolicy = "lfu"
	EvictionFIFO     EvictionPolicy = "fifo"
	EvictionTTL      EvictionPolicy = "ttl"
	EvictionPriority EvictionPolicy = "priority"
	EvictionSize     EvictionPolicy = "size"
)

// CacheMetadata carries the eviction-relevant attributes of an entry.
type CacheMetadata struct {
	Priority  CachePriority `json:"priority"`
	Evictable bool          `json:"evictable"`
	Tags      []string      `json:"tags,omitempty"`
}

// CacheEntry is a typed, content-addressed, optionally compressed blob.
type CacheEntry struct {
	ID              string          `json:"id" db:"id"`
	CodebaseID      string          `json:"codebase_id,omitempty" db:"codebase_id"`
	Key             string          `json:"key" db:"key"`
	Kind            CacheEntryType  `json:"kind" db:"kind"`
	Data            []byte          `json:"-" db:"data"`
	SizeBytes       int64           `json:"size_bytes" db:"size_bytes"`
	ContentType     string          `json:"content_type" db:"content_type"`
	Compression     CompressionType `json:"compression" db:"compression"`
	OriginalSize    int64           `json:"original_size,omitempty" db:"original_size"`
	DataHash        string          `json:"data_hash" db:"data_hash"`
	Metadata        CacheMetadata   `json:"metadata" db:"-"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	AccessCount     int64           `json:"access_count" db:"access_count"`
	AccessFrequency float64         `json:"access_frequency" db:"access_frequency"`
	LastAccessedAt  *time.Time      `json:"last_accessed_at,omitempty" db:"last_accessed_at"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// NewCacheEntry constructs an entry, computing size and integrity hash over
// the given bytes and defaulting to Normal priority, evictable.
func NewCacheEntry(key string, kind CacheEntryType, data []byte, contentType string) *CacheEntry {
	now := time.Now().UTC()
	return &CacheEntry{
		Key:         key,
		Kind:        kind,
		Data:        data,
		SizeBytes:   int64(len(data)),
		ContentType: contentType,
		Compression: CompressionNone,
		DataHash:    hashBytes(data),
		Metadata:    CacheMetadata{Priority: PriorityNormal, Evictable: true},
		CreatedAt:   now,
	}
}

// WithTTL sets the entry's expiry relative to now.
func (e *CacheEntry) WithTTL(ttl time.Duration) *CacheEntry {
	exp := time.Now().UTC().Add(ttl)
	e.ExpiresAt = &exp
	return e
}

// WithPriority sets the entry's eviction priority.
func (e *CacheEntry) WithPriority(p CachePriority) *CacheEntry {
	e.Metadata.Priority = p
	return e
}

// WithTags attaches tags used for bulk lookup and invalidation.
func (e *CacheEntry) WithTags(tags ...string) *CacheEntry {
	e.Metadata.Tags = append(e.Metadata.Tags, tags...)
	return e
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity recomputes the hash over Data and compares to DataHash.
func (e *CacheEntry) VerifyIntegrity() bool {
	return hashBytes(e.Data) == e.DataHash
}

// Validate enforces the §3/§4.4 CacheEntry invariants.
func (e *CacheEntry) Validate() error {
	if e.Key == "" {
		return fmt.Errorf("cache entry key must not be empty")
	}
	if e.SizeBytes != int64(len(e.Data)) {
		return fmt.Errorf("cache entry size_bytes %d does not match data length %d", e.SizeBytes, len(e.Data))
	}
	if !e.VerifyIntegrity() {
		return fmt.Errorf("cache entry %q failed integrity check", e.Key)
	}
	return nil
}

// IsExpired reports whether the entry's TTL has elapsed.
func (e *CacheEntry) IsExpired() bool {
	return e.ExpiresAt != nil && time.Now().UTC().After(*e.ExpiresAt)
}

// IsEvictable reports whether the policy is allowed to remove this entry:
// it must be marked evictable and not Critical priority.
func (e *CacheEntry) IsEvictable() bool {
	return e.Metadata.Evictable && e.Metadata.Priority != PriorityCritical
}

// Age returns how long ago the entry was created.
func (e *CacheEntry) Age() time.Duration {
	return time.Since(e.CreatedAt)
}

// TimeUntilExpiration returns the remaining TTL, or 0 if already expired or
// if the entry never expires.
func (e *CacheEntry) TimeUntilExpiration() time.Duration {
	if e.ExpiresAt == nil {
		return 0
	}
	remaining := time.Until(*e.ExpiresAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordAccess bumps the access counter, last-access timestamp, and
// recomputes the access frequency (accesses per hour since creation).
func (e *CacheEntry) RecordAccess() {
	now := time.Now().UTC()
	e.AccessCount++
	e.LastAccessedAt = &now
	e.AccessFrequency = calculateAccessFrequency(e.AccessCount, e.CreatedAt, now)
}

func calculateAccessFrequency(accessCount int64, createdAt, now time.Time) float64 {
	hours := now.Sub(createdAt).Hours()
	if hours <= 0 {
		return float64(accessCount)
	}
	return float64(accessCount) / hours
}

var priorityScore = map[CachePriority]float64{
	PriorityLow:      4.0,
	PriorityNormal:   3.0,
	PriorityHigh:     2.0,
	PriorityCritical: 0.0,
}

// EvictionScore computes this entry's score under the given policy; higher
// scores are evicted first. Non-evictable and Critical entries always score
// 0 regardless of policy.
func (e *CacheEntry) EvictionScore(policy EvictionPolicy) float64 {
	if !e.IsEvictable() {
		return 0
	}
	now := time.Now().UTC()
	switch policy {
	case EvictionLRU:
		if e.LastAccessedAt == nil {
			return 0
		}
		return now.Sub(*e.LastAccessedAt).Seconds()
	case EvictionLFU:
		return 1.0 / (e.AccessFrequency + 1.0)
	case EvictionFIFO:
		return e.Age().Seconds()
	case EvictionTTL:
		if e.ExpiresAt == nil {
			return 0
		}
		left := e.TimeUntilExpiration().Seconds()
		return 1.0 / (left + 1.0)
	case EvictionPriority:
		return priorityScore[e.Metadata.Priority]
	case EvictionSize:
		return float64(e.SizeBytes)
	default:
		if e.LastAccessedAt == nil {
			return 0
		}
		return now.Sub(*e.LastAccessedAt).Seconds()
	}
}

// CacheConfig holds tunables for the cache subsystem, matching the
// original's documented defaults.
type CacheConfig struct {
	MaxEntries                int64           `json:"max_entries"`
	MaxSizeBytes              int64           `json:"max_size_bytes"`
	DefaultTTL                time.Duration   `json:"default_ttl"`
	EvictionPolicy            EvictionPolicy  `json:"eviction_policy"`
	EnableCompression         bool            `json:"enable_compression"`
	CompressionType           CompressionType `json:"compression_type"`
	CompressionThresholdBytes int64           `json:"compression_threshold_bytes"`
	Persistent                bool            `json:"persistent"`
	CleanupInterval           time.Duration   `json:"cleanup_interval"`
}

// DefaultCacheConfig mirrors CacheConfig::default() from the reference
// implementation.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries:                10000,
		MaxSizeBytes:              100 * 1024 * 1024,
		DefaultTTL:                time.Hour,
		EvictionPolicy:            EvictionLRU,
		EnableCompression:         true,
		CompressionType:           CompressionGzip,
		CompressionThresholdBytes: 1024,
		Persistent:                false,
		CleanupInterval:           5 * time.Minute,
	}
}

// CacheStats tracks hit/miss/eviction counters and derived ratios. Its
// fields are plain values, not atomics; callers needing concurrent access
// wrap it with their own synchronization (cache.Store guards its copy with
// the store mutex, and Stats takes that lock).
type CacheStats struct {
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	Evictions     int64   `json:"evictions"`
	HitRatio      float64 `json:"hit_ratio"`
	AvgEntrySize  float64 `json:"avg_entry_size"`
	ExpiredCount  int64   `json:"expired_count"`
	totalEntries  int64
	totalSizeSeen int64
}

// RecordHit registers a cache hit and updates the hit ratio.
func (s *CacheStats) RecordHit() {
	s.Hits++
	s.updateHitRatio()
}

// RecordMiss registers a cache miss and updates the hit ratio.
func (s *CacheStats) RecordMiss() {
	s.Misses++
	s.updateHitRatio()
}

// RecordEviction registers an eviction.
func (s *CacheStats) RecordEviction() {
	s.Evictions++
}

func (s *CacheStats) updateHitRatio() {
	total := s.Hits + s.Misses
	if total == 0 {
		s.HitRatio = 0
		return
	}
	s.HitRatio = float64(s.Hits) / float64(total)
}

// UpdateAvgEntrySize folds a newly observed entry size into the running
// average entry size.
func (s *CacheStats) UpdateAvgEntrySize(size int64) {
	s.totalEntries++
	s.totalSizeSeen += size
	s.AvgEntrySize = float64(s.totalSizeSeen) / float64(s.totalEntries)
}
