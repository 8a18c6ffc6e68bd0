package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
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
	"go.uber.org/zap"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type testDeps struct {
	engine  *search.Engine
	indexer *indexer.Indexer
	storage storage.Storage
}

func newTestDeps(t *testing.T) testDeps {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "codesight.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	embedder := embedding.NewMockEmbedder(8)
	t.Cleanup(func() { _ = embedder.Close() })

	vecIdx, err := vector.NewMemoryIndex(8)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = vecIdx.Close() })

	kwIdx, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kwIdx.Close() })

	cacheCfg := models.DefaultCacheConfig()
	cacheCfg.CleanupInterval = 0
	cacheStore := cache.New(cacheCfg)
	t.Cleanup(cacheStore.Close)
	resultCache := search.NewResultCache(cacheStore, 0.85, 60, 120, 30)

	searchCfg := config.SearchConfig{TopKCandidates: 20}
	engine := search.NewEngine(store, embedder, vecIdx, kwIdx, resultCache, searchCfg, nil)

	idx := indexer.NewIndexer(store, embedder, vecIdx, kwIdx, func() parser.Parser { return parser.NewMockParser() },
		indexer.Options{NumWorkers: 1}, nil)

	return testDeps{engine: engine, indexer: idx, storage: store}
}

func TestHandleWatchDirectoriesList(t *testing.T) {
	deps := newTestDeps(t)
	logger := zap.NewNop()
	mock := &mockWatchService{dirs: []string{"/tmp/docs"}}
	srv := NewServer(deps.engine, deps.indexer, deps.storage, &config.ServerConfig{Port: 8080}, logger, mock, "", nil)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/watch/directories", nil)
	w := httptest.NewRecorder()
	srv.handleWatchDirectoriesList(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Directories) != 1 || out.Directories[0] != "/tmp/docs" {
		t.Errorf("directories: got %v", out.Directories)
	}
}

func TestHandleWatchDirectoriesList_NotEnabled(t *testing.T) {
	deps := newTestDeps(t)
	logger := zap.NewNop()
	srv := NewServer(deps.engine, deps.indexer, deps.storage, &config.ServerConfig{Port: 8080}, logger, nil, "", nil)
	r := httptest.NewRequest(http.MethodGet, "/api/v1/watch/directories", nil)
	w := httptest.NewRecorder()
	srv.handleWatchDirectoriesList(w, r)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleWatchDirectoriesAdd(t *testing.T) {
	deps := newTestDeps(t)
	logger := zap.NewNop()
	mock := &mockWatchService{}
	srv := NewServer(deps.engine, deps.indexer, deps.storage, &config.ServerConfig{Port: 8080}, logger, mock, "", nil)

	dir := t.TempDir()
	body, _ := json.Marshal(map[string]string{"path": dir})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/watch/directories", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleWatchDirectoriesAdd(w, r)
	if w.Code != http.StatusCreated {
		t.Errorf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	if len(mock.Directories()) != 1 {
		t.Errorf("expected 1 directory, got %v", mock.Directories())
	}
}

func TestHandleWatchDirectoriesAdd_InvalidPath(t *testing.T) {
	deps := newTestDeps(t)
	logger := zap.NewNop()
	mock := &mockWatchService{}
	srv := NewServer(deps.engine, deps.indexer, deps.storage, &config.ServerConfig{Port: 8080}, logger, mock, "", nil)

	dir := t.TempDir()
	body, _ := json.Marshal(map[string]string{"path": dir + "/nonexistent"})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/watch/directories", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleWatchDirectoriesAdd(w, r)
	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleWatchDirectoriesRemove(t *testing.T) {
	deps := newTestDeps(t)
	logger := zap.NewNop()
	dir := t.TempDir()
	mock := &mockWatchService{dirs: []string{dir}}
	srv := NewServer(deps.engine, deps.indexer, deps.storage, &config.ServerConfig{Port: 8080}, logger, mock, "", nil)

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/watch/directories?path="+dir, nil)
	w := httptest.NewRecorder()
	srv.handleWatchDirectoriesRemove(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	if len(mock.Directories()) != 0 {
		t.Errorf("expected 0 directories, got %v", mock.Directories())
	}
}

func writeMockSourceFile(t *testing.T, dir, name string) {
	t.Helper()
	content := "function ProcessPayment(amount)\nhandle the payment\n}\n"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestHandleCreateCodebaseAndSearch(t *testing.T) {
	deps := newTestDeps(t)
	logger := zap.NewNop()
	srv := NewServer(deps.engine, deps.indexer, deps.storage, &config.ServerConfig{Port: 8080}, logger, nil, "", nil)

	root := t.TempDir()
	writeMockSourceFile(t, root, "pay.mock")

	body, _ := json.Marshal(map[string]string{"name": "payments", "root_path": root})
	r := httptest.NewRequest(http.MethodPost, "/api/v1/codebases", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.handleCreateCodebase(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var cb models.Codebase
	if err := json.NewDecoder(w.Body).Decode(&cb); err != nil {
		t.Fatal(err)
	}
	if cb.Status != models.CodebaseIndexed {
		t.Errorf("status: got %s, want indexed", cb.Status)
	}

	searchBody, _ := json.Marshal(map[string]interface{}{
		"codebase_id": cb.ID,
		"text":        "ProcessPayment",
		"kind":        models.QueryKeyword,
		"limit":       10,
		"options":     map[string]interface{}{"use_cache": true, "timeout": 5 * time.Second, "max_snippet_length": 200, "sort_by": "relevance"},
	})
	sr := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(searchBody))
	sr.Header.Set("Content-Type", "application/json")
	sw := httptest.NewRecorder()
	srv.handleSearch(sw, sr)
	if sw.Code != http.StatusOK {
		t.Fatalf("search status: got %d, body: %s", sw.Code, sw.Body.String())
	}
	var resp models.QueryResponse
	if err := json.NewDecoder(sw.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) == 0 {
		t.Error("expected at least one search result")
	}
}

func TestHandleListAndGetCodebase(t *testing.T) {
	deps := newTestDeps(t)
	logger := zap.NewNop()
	srv := NewServer(deps.engine, deps.indexer, deps.storage, &config.ServerConfig{Port: 8080}, logger, nil, "", nil)

	cb := models.NewCodebase("demo", t.TempDir())
	if err := deps.storage.CreateCodebase(context.Background(), cb); err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api/v1/codebases", nil)
	w := httptest.NewRecorder()
	srv.handleListCodebases(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var listOut struct {
		Codebases []*models.Codebase `json:"codebases"`
	}
	if err := json.NewDecoder(w.Body).Decode(&listOut); err != nil {
		t.Fatal(err)
	}
	if len(listOut.Codebases) != 1 {
		t.Fatalf("codebases: got %d, want 1", len(listOut.Codebases))
	}

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", cb.ID)
	getReq := httptest.NewRequest(http.MethodGet, "/api/v1/codebases/"+cb.ID, nil)
	getReq = getReq.WithContext(context.WithValue(getReq.Context(), chi.RouteCtxKey, rctx))
	getW := httptest.NewRecorder()
	srv.handleGetCodebase(getW, getReq)
	if getW.Code != http.StatusOK {
		t.Fatalf("get status: got %d, body: %s", getW.Code, getW.Body.String())
	}
	var got models.Codebase
	if err := json.NewDecoder(getW.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != cb.ID {
		t.Errorf("got codebase id %s, want %s", got.ID, cb.ID)
	}
}

func TestHandleStats(t *testing.T) {
	deps := newTestDeps(t)
	logger := zap.NewNop()
	srv := NewServer(deps.engine, deps.indexer, deps.storage, &config.ServerConfig{Port: 8080}, logger, nil, "", nil)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	srv.handleStats(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d, body: %s", w.Code, w.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	deps := newTestDeps(t)
	logger := zap.NewNop()
	srv := NewServer(deps.engine, deps.indexer, deps.storage, &config.ServerConfig{Port: 8080}, logger, nil, "", nil)

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}
