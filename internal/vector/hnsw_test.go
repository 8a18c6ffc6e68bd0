package vector

import (
	"context"
	"path/filepath"
	"testing"
)

func TestHNSWIndex_AddAndSearch(t *testing.T) {
	idx, err := NewHNSWIndex(3)
	if err != nil {
		t.Fatalf("NewHNSWIndex: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	err = idx.Add(ctx, []string{"a", "b", "c"}, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Size() != 3 {
		t.Fatalf("Size=%d, want 3", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].ID != "a" {
		t.Errorf("top result = %s, want a", results[0].ID)
	}
}

func TestHNSWIndex_DimensionMismatch(t *testing.T) {
	idx, err := NewHNSWIndex(3)
	if err != nil {
		t.Fatalf("NewHNSWIndex: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 0}}); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if _, err := idx.Search(ctx, []float32{1, 0}, 1); err == nil {
		t.Error("expected dimension mismatch error on search")
	}
}

func TestHNSWIndex_RemoveIsLazy(t *testing.T) {
	idx, err := NewHNSWIndex(2)
	if err != nil {
		t.Fatalf("NewHNSWIndex: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Remove(ctx, []string{"a"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1 after lazy delete", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.ID == "a" {
			t.Error("removed id should not appear in search results")
		}
	}
}

func TestHNSWIndex_SaveLoadRoundTrip(t *testing.T) {
	idx, err := NewHNSWIndex(2)
	if err != nil {
		t.Fatalf("NewHNSWIndex: %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	path := filepath.Join(t.TempDir(), "index.hnsw")
	if err := idx.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored, err := NewHNSWIndex(2)
	if err != nil {
		t.Fatalf("NewHNSWIndex: %v", err)
	}
	defer restored.Close()
	if err := restored.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.Size() != 2 {
		t.Errorf("Size=%d, want 2 after load", restored.Size())
	}
}

func TestNewVectorIndex_HNSW(t *testing.T) {
	idx, err := NewVectorIndex("hnsw", 3)
	if err != nil {
		t.Fatalf("NewVectorIndex(hnsw): %v", err)
	}
	defer idx.Close()

	ctx := context.Background()
	if err := idx.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Size() != 1 {
		t.Errorf("Size=%d, want 1", idx.Size())
	}
}
