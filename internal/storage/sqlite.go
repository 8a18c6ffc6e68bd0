// Package storage provides a SQLite implementation of Storage.
package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/codesight/internal/codeerr"
)

// SQLiteStorage implements Storage using SQLite with WAL journaling.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

type txKey struct{}

// execer abstracts over *sql.DB and *sql.Tx so every method works both
// standalone and nested inside ExecuteTransaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStorage) execer(ctx context.Context) execer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and
// initializes the schema, enabling WAL journaling and foreign keys.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, codeerr.Wrap(codeerr.IO, "create database directory", err).WithSubject(dir)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_fk=true")
	if err != nil {
		return nil, codeerr.Wrap(codeerr.Storage, "open database", err).WithSubject(dbPath)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, codeerr.Wrap(codeerr.Storage, "apply pragma "+p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, codeerr.Wrap(codeerr.Storage, "initialize schema", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS codebase (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		root_path TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		file_count INTEGER NOT NULL DEFAULT 0,
		language_stats TEXT NOT NULL DEFAULT '{}',
		index_version TEXT,
		last_indexed_at TIMESTAMP,
		configuration_id TEXT,
		status TEXT NOT NULL DEFAULT 'unindexed',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS code_entity (
		id TEXT PRIMARY KEY,
		codebase_id TEXT NOT NULL REFERENCES codebase(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		qualified_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		start_column INTEGER NOT NULL DEFAULT 0,
		end_column INTEGER NOT NULL DEFAULT 0,
		language TEXT,
		signature TEXT,
		visibility TEXT NOT NULL DEFAULT 'public',
		documentation TEXT,
		ast_hash TEXT,
		embedding_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_entity_codebase ON code_entity(codebase_id);
	CREATE INDEX IF NOT EXISTS idx_entity_kind ON code_entity(kind);
	CREATE INDEX IF NOT EXISTS idx_entity_qualified_name ON code_entity(qualified_name);
	CREATE INDEX IF NOT EXISTS idx_entity_file_path ON code_entity(file_path);

	CREATE TABLE IF NOT EXISTS code_relationship (
		id TEXT PRIMARY KEY,
		source_entity_id TEXT NOT NULL REFERENCES code_entity(id) ON DELETE CASCADE,
		target_entity_id TEXT NOT NULL REFERENCES code_entity(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		confidence REAL NOT NULL DEFAULT 0,
		context TEXT,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(source_entity_id, target_entity_id, kind)
	);
	CREATE INDEX IF NOT EXISTS idx_rel_source ON code_relationship(source_entity_id);
	CREATE INDEX IF NOT EXISTS idx_rel_target ON code_relationship(target_entity_id);
	CREATE INDEX IF NOT EXISTS idx_rel_kind ON code_relationship(kind);

	CREATE TABLE IF NOT EXISTS embedding (
		id TEXT PRIMARY KEY,
		entity_id TEXT REFERENCES code_entity(id) ON DELETE SET NULL,
		content_hash TEXT NOT NULL,
		model_json TEXT NOT NULL DEFAULT '{}',
		dimension INTEGER NOT NULL,
		vector BLOB NOT NULL,
		source_json TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_embedding_content_hash ON embedding(content_hash);

	CREATE TABLE IF NOT EXISTS cache_entry (
		id TEXT PRIMARY KEY,
		codebase_id TEXT REFERENCES codebase(id) ON DELETE CASCADE,
		key TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		data BLOB NOT NULL,
		size_bytes INTEGER NOT NULL,
		content_type TEXT,
		compression TEXT NOT NULL DEFAULT 'none',
		original_size INTEGER NOT NULL DEFAULT 0,
		data_hash TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'normal',
		evictable INTEGER NOT NULL DEFAULT 1,
		tags TEXT,
		expires_at TIMESTAMP,
		access_count INTEGER NOT NULL DEFAULT 0,
		access_frequency REAL NOT NULL DEFAULT 0,
		last_accessed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cache_key ON cache_entry(key);
	CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entry(expires_at);

	CREATE TABLE IF NOT EXISTS query_log (
		id TEXT PRIMARY KEY,
		codebase_id TEXT,
		text TEXT NOT NULL,
		kind TEXT,
		intent TEXT,
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_codebase_ts ON query_log(codebase_id, timestamp DESC);
	`
	_, err := db.Exec(schema)
	return err
}

// ExecuteTransaction opens a transaction, runs f with a context carrying the
// transaction, and commits on success or rolls back on error. A context that
// already carries a transaction flattens: f runs directly against it without
// opening a nested transaction.
func (s *SQLiteStorage) ExecuteTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return f(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return codeerr.Wrap(codeerr.Storage, "begin transaction", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := f(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return codeerr.Wrap(codeerr.Storage, "commit transaction", err)
	}
	return nil
}

// Backup takes a consistent point-in-time copy of the live database using
// SQLite's VACUUM INTO, avoiding a raw file copy against a moving target.
func (s *SQLiteStorage) Backup(ctx context.Context, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return codeerr.Wrap(codeerr.IO, "create backup directory", err).WithSubject(dir)
		}
	}
	_, err := s.db.ExecContext(ctx, "VACUUM INTO ?", path)
	if err != nil {
		return codeerr.Wrap(codeerr.Storage, "backup database", err)
	}
	return nil
}

// Optimize refreshes planner statistics (PRAGMA optimize, then ANALYZE). It
// does not reclaim free space.
func (s *SQLiteStorage) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return codeerr.Wrap(codeerr.Storage, "optimize (pragma)", err)
	}
	if _, err := s.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return codeerr.Wrap(codeerr.Storage, "optimize (analyze)", err)
	}
	return nil
}

// HealthCheck performs a trivial round-trip query.
func (s *SQLiteStorage) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return codeerr.Wrap(codeerr.Storage, "health check", err)
	}
	return nil
}

// Stats reports per-table row counts, file size, and pool state.
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	counts := []struct {
		table string
		dst   *int64
	}{
		{"codebase", &st.CodebaseCount},
		{"code_entity", &st.EntityCount},
		{"code_relationship", &st.RelationshipCount},
		{"embedding", &st.EmbeddingCount},
		{"cache_entry", &st.CacheEntryCount},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
			return nil, codeerr.Wrap(codeerr.Storage, "count "+c.table, err)
		}
	}
	if s.path != ":memory:" {
		if info, err := os.Stat(s.path); err == nil {
			st.FileSizeBytes = info.Size()
		}
	}
	dbStats := s.db.Stats()
	st.OpenConnections = dbStats.OpenConnections
	st.IdleConnections = dbStats.Idle
	return st, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

var _ Storage = (*SQLiteStorage)(nil)
