package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/hyperjump/codesight/internal/codeerr"
	"github.com/hyperjump/codesight/internal/models"
)

// --- Codebases ---------------------------------------------------------

func (s *SQLiteStorage) CreateCodebase(ctx context.Context, cb *models.Codebase) error {
	if err := cb.Validate(); err != nil {
		return codeerr.Wrap(codeerr.Validation, "validate codebase", err)
	}
	langJSON, err := json.Marshal(cb.LanguageStats)
	if err != nil {
		return codeerr.Wrap(codeerr.Internal, "marshal language stats", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO codebase (id, name, root_path, size_bytes, file_count, language_stats,
			index_version, last_indexed_at, configuration_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cb.ID, cb.Name, cb.RootPath, cb.SizeBytes, cb.FileCount, string(langJSON),
		cb.IndexVersion, cb.LastIndexedAt, cb.ConfigurationID, string(cb.Status), cb.CreatedAt, cb.UpdatedAt)
	if err != nil {
		return codeerr.Wrap(codeerr.Storage, "create codebase", err).WithSubject(cb.ID)
	}
	return nil
}

func (s *SQLiteStorage) scanCodebase(row *sql.Row) (*models.Codebase, error) {
	var cb models.Codebase
	var status string
	var langJSON string
	err := row.Scan(&cb.ID, &cb.Name, &cb.RootPath, &cb.SizeBytes, &cb.FileCount, &langJSON,
		&cb.IndexVersion, &cb.LastIndexedAt, &cb.ConfigurationID, &status, &cb.CreatedAt, &cb.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cb.Status = models.CodebaseStatus(status)
	cb.LanguageStats = make(map[string]int)
	if langJSON != "" {
		_ = json.Unmarshal([]byte(langJSON), &cb.LanguageStats)
	}
	return &cb, nil
}

func (s *SQLiteStorage) GetCodebase(ctx context.Context, id string) (*models.Codebase, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, name, root_path, size_bytes, file_count, language_stats,
			index_version, last_indexed_at, configuration_id, status, created_at, updated_at
		FROM codebase WHERE id = ?`, id)
	cb, err := s.scanCodebase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, codeerr.New(codeerr.NotFound, "codebase not found").WithSubject(id)
	}
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Storage, "get codebase", err).WithSubject(id)
	}
	return cb, nil
}

func (s *SQLiteStorage) UpdateCodebase(ctx context.Context, cb *models.Codebase) error {
	if err := cb.Validate(); err != nil {
		return codeerr.Wrap(codeerr.Validation, "validate codebase", err)
	}
	langJSON, err := json.Marshal(cb.LanguageStats)
	if err != nil {
		return codeerr.Wrap(codeerr.Internal, "marshal language stats", err)
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE codebase SET name=?, root_path=?, size_bytes=?, file_count=?, language_stats=?,
			index_version=?, last_indexed_at=?, configuration_id=?, status=?, updated_at=?
		WHERE id=?`,
		cb.Name, cb.RootPath, cb.SizeBytes, cb.FileCount, string(langJSON),
		cb.IndexVersion, cb.LastIndexedAt, cb.ConfigurationID, string(cb.Status), cb.UpdatedAt, cb.ID)
	if err != nil {
		return codeerr.Wrap(codeerr.Storage, "update codebase", err).WithSubject(cb.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return codeerr.New(codeerr.NotFound, "codebase not found").WithSubject(cb.ID)
	}
	return nil
}

func (s *SQLiteStorage) DeleteCodebase(ctx context.Context, id string) error {
	res, err := s.execer(ctx).ExecContext(ctx, "DELETE FROM codebase WHERE id=?", id)
	if err != nil {
		return codeerr.Wrap(codeerr.Storage, "delete codebase", err).WithSubject(id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return codeerr.New(codeerr.NotFound, "codebase not found").WithSubject(id)
	}
	return nil
}

func (s *SQLiteStorage) ListCodebases(ctx context.Context) ([]*models.Codebase, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, name, root_path, size_bytes, file_count, language_stats,
			index_version, last_indexed_at, configuration_id, status, created_at, updated_at
		FROM codebase ORDER BY created_at`)
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Storage, "list codebases", err)
	}
	defer rows.Close()

	var out []*models.Codebase
	for rows.Next() {
		var cb models.Codebase
		var status, langJSON string
		if err := rows.Scan(&cb.ID, &cb.Name, &cb.RootPath, &cb.SizeBytes, &cb.FileCount, &langJSON,
			&cb.IndexVersion, &cb.LastIndexedAt, &cb.ConfigurationID, &status, &cb.CreatedAt, &cb.UpdatedAt); err != nil {
			return nil, codeerr.Wrap(codeerr.Storage, "scan codebase", err)
		}
		cb.Status = models.CodebaseStatus(status)
		cb.LanguageStats = make(map[string]int)
		if langJSON != "" {
			_ = json.Unmarshal([]byte(langJSON), &cb.LanguageStats)
		}
		out = append(out, &cb)
	}
	return out, rows.Err()
}

// --- Code entities -------------------------------------------------------

func (s *SQLiteStorage) UpsertEntity(ctx context.Context, e *models.CodeEntity) error {
	if err := e.Validate(); err != nil {
		return codeerr.Wrap(codeerr.Validation, "validate entity", err)
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO code_entity (id, codebase_id, kind, name, qualified_name, file_path,
			start_line, end_line, start_column, end_column, language, signature, visibility,
			documentation, ast_hash, embedding_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind, name=excluded.name, qualified_name=excluded.qualified_name,
			file_path=excluded.file_path, start_line=excluded.start_line, end_line=excluded.end_line,
			start_column=excluded.start_column, end_column=excluded.end_column, language=excluded.language,
			signature=excluded.signature, visibility=excluded.visibility, documentation=excluded.documentation,
			ast_hash=excluded.ast_hash, embedding_id=excluded.embedding_id, updated_at=excluded.updated_at`,
		e.ID, e.CodebaseID, string(e.Kind), e.Name, e.QualifiedName, e.FilePath,
		e.StartLine, e.EndLine, e.StartColumn, e.EndColumn, e.Language, e.Signature, string(e.Visibility),
		e.Documentation, e.ASTHash, e.EmbeddingID, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return codeerr.Wrap(codeerr.Storage, "upsert entity", err).WithSubject(e.ID)
	}
	return nil
}

func scanEntity(scan func(dest ...any) error) (*models.CodeEntity, error) {
	var e models.CodeEntity
	var kind, visibility string
	if err := scan(&e.ID, &e.CodebaseID, &kind, &e.Name, &e.QualifiedName, &e.FilePath,
		&e.StartLine, &e.EndLine, &e.StartColumn, &e.EndColumn, &e.Language, &e.Signature, &visibility,
		&e.Documentation, &e.ASTHash, &e.EmbeddingID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Kind = models.EntityKind(kind)
	e.Visibility = models.Visibility(visibility)
	return &e, nil
}

const entityColumns = `id, codebase_id, kind, name, qualified_name, file_path,
	start_line, end_line, start_column, end_column, language, signature, visibility,
	documentation, ast_hash, embedding_id, created_at, updated_at`

func (s *SQLiteStorage) GetEntity(ctx context.Context, id string) (*models.CodeEntity, error) {
	row := s.execer(ctx).QueryRowContext(ctx, "SELECT "+entityColumns+" FROM code_entity WHERE id=?", id)
	e, err := scanEntity(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, codeerr.New(codeerr.NotFound, "entity not found").WithSubject(id)
	}
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Storage, "get entity", err).WithSubject(id)
	}
	return e, nil
}

func (s *SQLiteStorage) FindEntity(ctx context.Context, codebaseID, qualifiedName, filePath string) (*models.CodeEntity, error) {
	row := s.execer(ctx).QueryRowContext(ctx, "SELECT "+entityColumns+
		" FROM code_entity WHERE codebase_id=? AND qualified_name=? AND file_path=?", codebaseID, qualifiedName, filePath)
	e, err := scanEntity(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, codeerr.New(codeerr.NotFound, "entity not found").WithSubject(qualifiedName)
	}
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Storage, "find entity", err).WithSubject(qualifiedName)
	}
	return e, nil
}

func (s *SQLiteStorage) ListEntities(ctx context.Context, codebaseID string) ([]*models.CodeEntity, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, "SELECT "+entityColumns+
		" FROM code_entity WHERE codebase_id=? ORDER BY file_path, start_line", codebaseID)
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Storage, "list entities", err).WithSubject(codebaseID)
	}
	defer rows.Close()

	var out []*models.CodeEntity
	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, codeerr.Wrap(codeerr.Storage, "scan entity", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) DeleteEntitiesByFile(ctx context.Context, codebaseID, filePath string) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		"DELETE FROM code_entity WHERE codebase_id=? AND file_path=?", codebaseID, filePath)
	if err != nil {
		return codeerr.Wrap(codeerr.Storage, "delete entities by file", err).WithSubject(filePath)
	}
	return nil
}

// --- Relationships --------------------------------------------------------

func (s *SQLiteStorage) UpsertRelationships(ctx context.Context, rels []*models.CodeRelationship) error {
	for _, r := range models.MergeRelationships(rels) {
		if err := r.Validate(); err != nil {
			return codeerr.Wrap(codeerr.Validation, "validate relationship", err)
		}
		_, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO code_relationship (id, source_entity_id, target_entity_id, kind, confidence, context, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_entity_id, target_entity_id, kind) DO UPDATE SET
				confidence=excluded.confidence, context=excluded.context`,
			r.ID, r.SourceEntityID, r.TargetEntityID, string(r.Kind), r.Confidence, r.Context, r.CreatedAt)
		if err != nil {
			return codeerr.Wrap(codeerr.Storage, "upsert relationship", err).WithSubject(r.ID)
		}
	}
	return nil
}

const relationshipColumns = `id, source_entity_id, target_entity_id, kind, confidence, context, created_at`

func scanRelationships(rows *sql.Rows) ([]*models.CodeRelationship, error) {
	defer rows.Close()
	var out []*models.CodeRelationship
	for rows.Next() {
		var r models.CodeRelationship
		var kind string
		if err := rows.Scan(&r.ID, &r.SourceEntityID, &r.TargetEntityID, &kind, &r.Confidence, &r.Context, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Kind = models.RelationshipKind(kind)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) RelationshipsFrom(ctx context.Context, entityID string) ([]*models.CodeRelationship, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, "SELECT "+relationshipColumns+
		" FROM code_relationship WHERE source_entity_id=?", entityID)
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Storage, "relationships from", err).WithSubject(entityID)
	}
	out, err := scanRelationships(rows)
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Storage, "scan relationships", err)
	}
	return out, nil
}

func (s *SQLiteStorage) RelationshipsTo(ctx context.Context, entityID string) ([]*models.CodeRelationship, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, "SELECT "+relationshipColumns+
		" FROM code_relationship WHERE target_entity_id=?", entityID)
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Storage, "relationships to", err).WithSubject(entityID)
	}
	out, err := scanRelationships(rows)
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Storage, "scan relationships", err)
	}
	return out, nil
}

// --- Embeddings -------------------------------------------------------

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(b []byte) []float32 {
	n := len(b) / 4
	v := make([]float32, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func (s *SQLiteStorage) PutEmbedding(ctx context.Context, e *models.Embedding) error {
	if err := e.Validate(); err != nil {
		return codeerr.Wrap(codeerr.Validation, "validate embedding", err)
	}
	modelJSON, err := json.Marshal(e.Model)
	if err != nil {
		return codeerr.Wrap(codeerr.Internal, "marshal model descriptor", err)
	}
	var sourceJSON []byte
	if e.Source != nil {
		sourceJSON, err = json.Marshal(e.Source)
		if err != nil {
			return codeerr.Wrap(codeerr.Internal, "marshal source location", err)
		}
	}
	var entityID any
	if e.EntityID != "" {
		entityID = e.EntityID
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO embedding (id, entity_id, content_hash, model_json, dimension, vector, source_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, entityID, e.ContentHash, string(modelJSON), e.Dimension, vectorToBytes(e.Vector), string(sourceJSON), e.CreatedAt)
	if err != nil {
		return codeerr.Wrap(codeerr.Storage, "put embedding", err).WithSubject(e.ID)
	}
	return nil
}

func scanEmbedding(scan func(dest ...any) error) (*models.Embedding, error) {
	var e models.Embedding
	var modelJSON, sourceJSON sql.NullString
	var entityID sql.NullString
	var vecBytes []byte
	if err := scan(&e.ID, &entityID, &e.ContentHash, &modelJSON, &e.Dimension, &vecBytes, &sourceJSON, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.EntityID = entityID.String
	e.Vector = bytesToVector(vecBytes)
	if modelJSON.Valid {
		_ = json.Unmarshal([]byte(modelJSON.String), &e.Model)
	}
	if sourceJSON.Valid && sourceJSON.String != "" {
		var loc models.SourceLocation
		if err := json.Unmarshal([]byte(sourceJSON.String), &loc); err == nil {
			e.Source = &loc
		}
	}
	return &e, nil
}

const embeddingColumns = `id, entity_id, content_hash, model_json, dimension, vector, source_json, created_at`

func (s *SQLiteStorage) GetEmbeddingByHash(ctx context.Context, contentHash string) (*models.Embedding, error) {
	row := s.execer(ctx).QueryRowContext(ctx, "SELECT "+embeddingColumns+
		" FROM embedding WHERE content_hash=? ORDER BY created_at DESC LIMIT 1", contentHash)
	e, err := scanEmbedding(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, codeerr.New(codeerr.NotFound, "embedding not found").WithSubject(contentHash)
	}
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Storage, "get embedding by hash", err).WithSubject(contentHash)
	}
	return e, nil
}

func (s *SQLiteStorage) GetEmbeddingByEntity(ctx context.Context, entityID string) (*models.Embedding, error) {
	row := s.execer(ctx).QueryRowContext(ctx, "SELECT "+embeddingColumns+
		" FROM embedding WHERE entity_id=? ORDER BY created_at DESC LIMIT 1", entityID)
	e, err := scanEmbedding(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, codeerr.New(codeerr.NotFound, "embedding not found").WithSubject(entityID)
	}
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Storage, "get embedding by entity", err).WithSubject(entityID)
	}
	return e, nil
}

// --- Cache entries -------------------------------------------------------

func (s *SQLiteStorage) PutCacheEntry(ctx context.Context, e *models.CacheEntry) error {
	if err := e.Validate(); err != nil {
		return codeerr.Wrap(codeerr.Validation, "validate cache entry", err)
	}
	tagsJSON, err := json.Marshal(e.Metadata.Tags)
	if err != nil {
		return codeerr.Wrap(codeerr.Internal, "marshal cache tags", err)
	}
	var codebaseID any
	if e.CodebaseID != "" {
		codebaseID = e.CodebaseID
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO cache_entry (id, codebase_id, key, kind, data, size_bytes, content_type, compression,
			original_size, data_hash, priority, evictable, tags, expires_at, access_count, access_frequency,
			last_accessed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data=excluded.data, size_bytes=excluded.size_bytes, content_type=excluded.content_type,
			compression=excluded.compression, original_size=excluded.original_size, data_hash=excluded.data_hash,
			priority=excluded.priority, evictable=excluded.evictable, tags=excluded.tags,
			expires_at=excluded.expires_at, access_count=excluded.access_count,
			access_frequency=excluded.access_frequency, last_accessed_at=excluded.last_accessed_at`,
		e.ID, codebaseID, e.Key, string(e.Kind), e.Data, e.SizeBytes, e.ContentType, string(e.Compression),
		e.OriginalSize, e.DataHash, string(e.Metadata.Priority), e.Metadata.Evictable, string(tagsJSON),
		e.ExpiresAt, e.AccessCount, e.AccessFrequency, e.LastAccessedAt, e.CreatedAt)
	if err != nil {
		return codeerr.Wrap(codeerr.Storage, "put cache entry", err).WithSubject(e.Key)
	}
	return nil
}

func (s *SQLiteStorage) GetCacheEntry(ctx context.Context, key string) (*models.CacheEntry, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, codebase_id, key, kind, data, size_bytes, content_type, compression,
			original_size, data_hash, priority, evictable, tags, expires_at, access_count, access_frequency,
			last_accessed_at, created_at
		FROM cache_entry WHERE key=?`, key)

	var e models.CacheEntry
	var codebaseID sql.NullString
	var kind, compression, priority string
	var tagsJSON string
	if err := row.Scan(&e.ID, &codebaseID, &e.Key, &kind, &e.Data, &e.SizeBytes, &e.ContentType, &compression,
		&e.OriginalSize, &e.DataHash, &priority, &e.Metadata.Evictable, &tagsJSON, &e.ExpiresAt,
		&e.AccessCount, &e.AccessFrequency, &e.LastAccessedAt, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, codeerr.New(codeerr.NotFound, "cache entry not found").WithSubject(key)
		}
		return nil, codeerr.Wrap(codeerr.Storage, "get cache entry", err).WithSubject(key)
	}
	e.CodebaseID = codebaseID.String
	e.Kind = models.CacheEntryType(kind)
	e.Compression = models.CompressionType(compression)
	e.Metadata.Priority = models.CachePriority(priority)
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &e.Metadata.Tags)
	}
	return &e, nil
}

func (s *SQLiteStorage) DeleteCacheEntry(ctx context.Context, key string) error {
	_, err := s.execer(ctx).ExecContext(ctx, "DELETE FROM cache_entry WHERE key=?", key)
	if err != nil {
		return codeerr.Wrap(codeerr.Storage, "delete cache entry", err).WithSubject(key)
	}
	return nil
}

func (s *SQLiteStorage) ListExpiredCacheEntries(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		"SELECT key FROM cache_entry WHERE expires_at IS NOT NULL AND expires_at < ?", before)
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Storage, "list expired cache entries", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, codeerr.Wrap(codeerr.Storage, "scan expired cache key", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
