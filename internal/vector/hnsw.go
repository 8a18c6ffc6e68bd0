// Package vector: HNSW-backed approximate nearest neighbor index, a pure-Go
// alternative to FAISS for deployments that can't or won't enable CGO.
package vector

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex wraps a coder/hnsw graph behind the VectorIndex interface.
// Deletions are lazy: the id/key mapping is dropped immediately so removed
// vectors stop appearing in Search results, but the underlying graph node is
// left in place (deleting the last node in coder/hnsw can corrupt the graph).
type HNSWIndex struct {
	dimensions int
	graph      *hnsw.Graph[uint64]

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	mu sync.RWMutex
}

type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
}

// NewHNSWIndex creates an HNSW index over cosine-similarity vectors of the
// given dimension.
func NewHNSWIndex(dimensions int) (*HNSWIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	return &HNSWIndex{
		dimensions: dimensions,
		graph:      g,
		idMap:      make(map[string]uint64),
		keyMap:     make(map[uint64]string),
	}, nil
}

// Type returns the index type identifier.
func (h *HNSWIndex) Type() string {
	return string(IndexTypeHNSW)
}

// Add inserts vectors keyed by id, orphaning any existing node under the
// same id via lazy deletion before assigning a fresh internal key.
func (h *HNSWIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, v := range vectors {
		if len(v) != h.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), h.dimensions)
		}
	}

	for i, id := range ids {
		if existingKey, ok := h.idMap[id]; ok {
			delete(h.keyMap, existingKey)
			delete(h.idMap, id)
		}

		key := h.nextKey
		h.nextKey++

		vec := make([]float32, h.dimensions)
		copy(vec, vectors[i])
		h.graph.Add(hnsw.MakeNode(key, vec))

		h.idMap[id] = key
		h.keyMap[key] = id
	}
	return nil
}

// Search returns the top-k approximate nearest neighbors by cosine distance,
// converted to a similarity score in [0,1].
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != h.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), h.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph.Len() == 0 {
		return nil, nil
	}

	nodes := h.graph.Search(query, k)
	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		id, ok := h.keyMap[node.Key]
		if !ok {
			continue // lazily deleted
		}
		distance := h.graph.Distance(query, node.Value)
		results = append(results, &VectorResult{ID: id, Score: 1 - float64(distance)/2})
	}
	return results, nil
}

// Remove lazily deletes ids: their mapping is dropped so they no longer
// surface in Search, though their graph nodes persist until the next rebuild.
func (h *HNSWIndex) Remove(ctx context.Context, ids []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		if key, ok := h.idMap[id]; ok {
			delete(h.keyMap, key)
			delete(h.idMap, id)
		}
	}
	return nil
}

// Save persists the graph and id mapping to path (graph) and path+".meta"
// (gob-encoded mapping).
func (h *HNSWIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()
	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("export hnsw graph: %w", err)
	}

	metaFile, err := os.Create(path + ".meta")
	if err != nil {
		return fmt.Errorf("create index metadata file: %w", err)
	}
	defer metaFile.Close()
	meta := hnswMetadata{IDMap: h.idMap, NextKey: h.nextKey}
	if err := gob.NewEncoder(metaFile).Encode(meta); err != nil {
		return fmt.Errorf("encode index metadata: %w", err)
	}
	return nil
}

// Load replaces the in-memory graph and id mapping with the contents of
// path. A missing file is not an error; the index is left unchanged.
func (h *HNSWIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open index metadata file: %w", err)
	}
	defer metaFile.Close()
	var meta hnswMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decode index metadata: %w", err)
	}

	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	// coder/hnsw's Import requires an io.ByteReader.
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import hnsw graph: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.graph = g
	h.idMap = meta.IDMap
	h.nextKey = meta.NextKey
	h.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range h.idMap {
		h.keyMap[key] = id
	}
	return nil
}

// Size returns the number of live (non-lazily-deleted) vectors.
func (h *HNSWIndex) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idMap)
}

// Close is a no-op; the graph holds no external resources.
func (h *HNSWIndex) Close() error {
	return nil
}

var _ VectorIndex = (*HNSWIndex)(nil)
