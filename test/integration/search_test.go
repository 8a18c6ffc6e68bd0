// Package integration provides end-to-end tests (requires real storage and indices).
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/codesight/internal/cache"
	"github.com/hyperjump/codesight/internal/config"
	"github.com/hyperjump/codesight/internal/embedding"
	"github.com/hyperjump/codesight/internal/indexer"
	"github.com/hyperjump/codesight/internal/keyword"
	"github.com/hyperjump/codesight/internal/models"
	"github.com/hyperjump/codesight/internal/parser"
	"github.com/hyperjump/codesight/internal/search"
	"github.com/hyperjump/codesight/internal/storage"
	"github.com/hyperjump/codesight/internal/vector"
)

func writeSourceFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	full := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestIntegration_Search(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:    filepath.Join(dir, "db.sqlite"),
			BleveIndexPath:  filepath.Join(dir, "bleve"),
			FAISSIndexPath:  filepath.Join(dir, "faiss"),
			VectorIndexType: "memory",
		},
		Embedding: config.EmbeddingConfig{Dimensions: 8, MaxTokens: 32, CacheSize: 100},
		Search: config.SearchConfig{
			TopKCandidates:         20,
			DefaultMinKeywordScore: 0,
			DefaultMinSemanticScore: 0,
			FuzzyCacheThreshold:    0.85,
			CacheTTLDefaultMinutes: 15,
			CacheTTLLongMinutes:    60,
			CacheTTLShortMinutes:   5,
		},
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	embedder := embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	defer embedder.Close()

	vecIndex, err := vector.NewVectorIndex(cfg.Storage.VectorIndexType, cfg.Embedding.Dimensions)
	if err != nil {
		t.Fatal(err)
	}
	defer vecIndex.Close()

	kwIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	defer kwIndex.Close()

	resultCache := search.NewResultCache(cache.New(models.CacheConfig{}), cfg.Search.FuzzyCacheThreshold,
		cfg.Search.CacheTTLDefaultMinutes, cfg.Search.CacheTTLLongMinutes, cfg.Search.CacheTTLShortMinutes)
	engine := search.NewEngine(store, embedder, vecIndex, kwIndex, resultCache, cfg.Search, nil)
	idx := indexer.NewIndexer(store, embedder, vecIndex, kwIndex,
		func() parser.Parser { return parser.NewMockParser() },
		indexer.Options{NumWorkers: 2}, nil)

	root := filepath.Join(dir, "repo")
	writeSourceFile(t, root, "ml/train.go", "function TrainModel(data) {\n}\n")
	writeSourceFile(t, root, "search/semantic.go", "function SemanticSearch(query) {\n}\n")

	cb := models.NewCodebase("repo", root)
	ctx := context.Background()
	if err := store.CreateCodebase(ctx, cb); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexCodebase(ctx, cb); err != nil {
		t.Fatal(err)
	}
	summary := idx.Progress()
	if summary.TotalEntities < 2 {
		t.Fatalf("expected at least 2 entities indexed, got %d", summary.TotalEntities)
	}

	resp, err := engine.Search(ctx, cb.ID, &models.Query{
		Text: "TrainModel", Kind: models.QueryHybrid, Limit: 5, Options: models.DefaultQueryOptions(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalCount < 1 {
		t.Errorf("expected at least 1 result, got %d", resp.TotalCount)
	}

	found := false
	for _, r := range resp.Results {
		if r.Name == "TrainModel" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected TrainModel among results, got %+v", resp.Results)
	}
}
