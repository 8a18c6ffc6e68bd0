// Package cache provides a typed, policy-driven in-memory cache over
// models.CacheEntry, with optional gzip compression and a background TTL
// sweep (spec §4.4).
package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"sync"
	"time"

	"github.com/hyperjump/codesight/internal/codeerr"
	"github.com/hyperjump/codesight/internal/models"
)

// Store is a thread-safe cache of CacheEntry values, evicting under a single
// configured EvictionPolicy once MaxEntries or MaxSizeBytes is exceeded.
type Store struct {
	mu      sync.Mutex
	cfg     models.CacheConfig
	entries map[string]*models.CacheEntry
	sizeSum int64
	stats   models.CacheStats

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// New builds a Store from cfg, starting a background TTL sweep if
// cfg.CleanupInterval is positive.
func New(cfg models.CacheConfig) *Store {
	s := &Store{
		cfg:         cfg,
		entries:     make(map[string]*models.CacheEntry),
		stopCleanup: make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go s.runCleanup(cfg.CleanupInterval)
	}
	return s
}

// Close stops the background cleanup goroutine, if running.
func (s *Store) Close() {
	s.cleanupOnce.Do(func() { close(s.stopCleanup) })
}

func (s *Store) runCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *Store) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if e.IsExpired() {
			s.removeLocked(key)
			s.stats.ExpiredCount++
		}
	}
}

// Put compresses (if configured and above threshold), stores, and indexes
// entry by its key, then evicts under the configured policy until within
// capacity; the entry just put is itself a candidate for eviction.
func (s *Store) Put(ctx context.Context, entry *models.CacheEntry) error {
	if err := entry.Validate(); err != nil {
		return codeerr.Wrap(codeerr.Validation, "validate cache entry", err)
	}

	if s.cfg.EnableCompression && entry.Compression == models.CompressionNone &&
		int64(len(entry.Data)) >= s.cfg.CompressionThresholdBytes {
		compressed, err := compress(entry.Data)
		if err == nil && len(compressed) < len(entry.Data) {
			entry.OriginalSize = int64(len(entry.Data))
			entry.Data = compressed
			entry.Compression = s.cfg.CompressionType
			entry.SizeBytes = int64(len(compressed))
		}
	}

	if entry.ExpiresAt == nil && s.cfg.DefaultTTL > 0 {
		entry.WithTTL(s.cfg.DefaultTTL)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, hadPrevious := s.entries[entry.Key]
	if hadPrevious {
		s.sizeSum -= previous.SizeBytes
	}
	s.entries[entry.Key] = entry
	s.sizeSum += entry.SizeBytes

	if err := s.evictIfOverCapacityLocked(); err != nil {
		delete(s.entries, entry.Key)
		s.sizeSum -= entry.SizeBytes
		if hadPrevious {
			s.entries[entry.Key] = previous
			s.sizeSum += previous.SizeBytes
		}
		return err
	}
	s.stats.UpdateAvgEntrySize(entry.SizeBytes)
	return nil
}

// Get returns the (decompressed) bytes stored under key, recording a hit or
// miss and bumping the entry's access counters on hit. The integrity hash is
// recomputed over the uncompressed bytes; on mismatch the entry is removed
// and a Storage error is returned.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	entry, ok := s.entries[key]
	if !ok {
		s.stats.RecordMiss()
		s.mu.Unlock()
		return nil, false, nil
	}
	if entry.IsExpired() {
		s.removeLocked(key)
		s.stats.RecordMiss()
		s.mu.Unlock()
		return nil, false, nil
	}
	entry.RecordAccess()
	s.stats.RecordHit()
	data := entry.Data
	compression := entry.Compression
	dataHash := entry.DataHash
	s.mu.Unlock()

	if compression == models.CompressionGzip {
		out, err := decompress(data)
		if err != nil {
			return nil, false, codeerr.Wrap(codeerr.Storage, "decompress cache entry", err).WithSubject(key)
		}
		data = out
	}
	if !(&models.CacheEntry{Data: data, DataHash: dataHash}).VerifyIntegrity() {
		s.Delete(key)
		return nil, false, codeerr.New(codeerr.Storage, "cache entry failed integrity check").WithSubject(key)
	}
	return data, true, nil
}

// Delete removes key unconditionally, regardless of eviction policy.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
}

func (s *Store) removeLocked(key string) {
	if e, ok := s.entries[key]; ok {
		s.sizeSum -= e.SizeBytes
		delete(s.entries, key)
	}
}

// evictIfOverCapacityLocked repeatedly evicts the highest-scoring evictable
// entry under the configured policy until both limits are satisfied. Returns
// a Validation error if capacity is still exceeded and no entry is evictable
// (e.g. every entry, including the one just put, carries PriorityCritical).
func (s *Store) evictIfOverCapacityLocked() error {
	for s.overCapacityLocked() {
		victim := s.pickVictimLocked()
		if victim == "" {
			return codeerr.New(codeerr.Validation, "cache over capacity with no evictable entries")
		}
		s.removeLocked(victim)
		s.stats.RecordEviction()
	}
	return nil
}

func (s *Store) overCapacityLocked() bool {
	if s.cfg.MaxEntries > 0 && int64(len(s.entries)) > s.cfg.MaxEntries {
		return true
	}
	if s.cfg.MaxSizeBytes > 0 && s.sizeSum > s.cfg.MaxSizeBytes {
		return true
	}
	return false
}

func (s *Store) pickVictimLocked() string {
	var bestKey string
	var bestScore float64
	found := false
	for key, e := range s.entries {
		if !e.IsEvictable() {
			continue
		}
		score := e.EvictionScore(s.cfg.EvictionPolicy)
		if !found || score > bestScore ||
			(score == bestScore && e.CreatedAt.Before(s.entries[bestKey].CreatedAt)) {
			bestKey, bestScore, found = key, score, true
		}
	}
	return bestKey
}

// Stats returns a snapshot of hit/miss/eviction counters.
func (s *Store) Stats() models.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Len reports the current number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Range calls fn for every non-expired entry, stopping early if fn returns
// false. Used by fuzzy cache-hit lookups that need to scan beyond a single
// exact key.
func (s *Store) Range(fn func(key string, entry *models.CacheEntry) bool) {
	s.mu.Lock()
	snapshot := make([]*models.CacheEntry, 0, len(s.entries))
	keys := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		if e.IsExpired() {
			continue
		}
		keys = append(keys, k)
		snapshot = append(snapshot, e)
	}
	s.mu.Unlock()

	for i, e := range snapshot {
		if !fn(keys[i], e) {
			return
		}
	}
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
