package server

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/codesight/internal/config"
	"github.com/hyperjump/codesight/internal/models"
	"go.uber.org/zap"
)

func absPath(path string) (string, error) {
	return filepath.Abs(path)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// searchRequest wraps a models.Query with the codebase it targets. Query's
// fields are promoted to the top level of the request body.
type searchRequest struct {
	CodebaseID string `json:"codebase_id"`
	models.Query
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CodebaseID == "" {
		s.respondError(w, http.StatusBadRequest, "codebase_id is required")
		return
	}
	if req.Options.Timeout == 0 {
		req.Options = models.DefaultQueryOptions()
	}
	q := req.Query
	s.logger.Debug("search request", zap.String("codebase_id", req.CodebaseID), zap.String("text", q.Text))
	resp, err := s.engine.Search(r.Context(), req.CodebaseID, &q)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type createCodebaseRequest struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
}

// handleCreateCodebase registers a codebase and indexes it synchronously,
// returning the codebase record with its final status once indexing
// completes (or fails).
func (s *Server) handleCreateCodebase(w http.ResponseWriter, r *http.Request) {
	var req createCodebaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cb := models.NewCodebase(req.Name, req.RootPath)
	if err := cb.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.storage.CreateCodebase(r.Context(), cb); err != nil {
		s.logger.Error("create codebase failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := cb.TransitionTo(models.CodebaseIndexing); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = s.storage.UpdateCodebase(r.Context(), cb)

	runErr := s.indexer.IndexCodebase(r.Context(), cb)
	summary := s.indexer.Progress()
	cb.FileCount = summary.ProcessedFiles
	if runErr != nil {
		s.logger.Error("index codebase failed", zap.Error(runErr))
		_ = cb.TransitionTo(models.CodebaseError)
		_ = s.storage.UpdateCodebase(r.Context(), cb)
		s.respondError(w, http.StatusInternalServerError, runErr.Error())
		return
	}
	_ = cb.TransitionTo(models.CodebaseIndexed)
	if err := s.storage.UpdateCodebase(r.Context(), cb); err != nil {
		s.logger.Warn("update codebase after indexing failed", zap.Error(err))
	}
	s.respondJSON(w, http.StatusCreated, cb)
}

func (s *Server) handleListCodebases(w http.ResponseWriter, r *http.Request) {
	cbs, err := s.storage.ListCodebases(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"codebases": cbs})
}

func (s *Server) handleGetCodebase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cb, err := s.storage.GetCodebase(r.Context(), id)
	if err != nil || cb == nil {
		s.respondError(w, http.StatusNotFound, "codebase not found")
		return
	}
	s.respondJSON(w, http.StatusOK, cb)
}

func (s *Server) handleDeleteCodebase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.storage.DeleteCodebase(r.Context(), id); err != nil {
		s.logger.Error("delete codebase failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.storage.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{"stats": stats}
	if s.watchConfig != nil {
		resp["config"] = configSummary(s.watchConfig)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func configSummary(cfg *config.Config) map[string]interface{} {
	return map[string]interface{}{
		"embedding_dimensions": cfg.Embedding.Dimensions,
		"top_k_candidates":     cfg.Search.TopKCandidates,
		"database_path":        cfg.Storage.DatabasePath,
		"bleve_index_path":     cfg.Storage.BleveIndexPath,
		"vector_index_type":    cfg.Storage.VectorIndexType,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.HealthCheck(r.Context()); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	dirs := s.watch.Directories()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": dirs})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := absPath(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if !isDir(abs) {
		s.respondError(w, http.StatusNotFound, "directory not found")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
		return
	}
	abs, err := absPath(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.watchConfig == nil {
		return
	}
	s.watchConfigMu.Lock()
	s.watchConfig.Watch.Directories = s.watch.Directories()
	err := config.Save(s.configPath, s.watchConfig)
	s.watchConfigMu.Unlock()
	if err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
