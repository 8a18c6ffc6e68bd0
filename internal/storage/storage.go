// Package storage provides durable, ACID-capable persistence for codebases,
// code entities, relationships, embeddings, cache entries, and queries
// (spec §4.1).
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/codesight/internal/models"
)

// Stats reports per-table counts and pool health for health_check/stats.
type Stats struct {
	CodebaseCount     int64 `json:"codebase_count"`
	EntityCount       int64 `json:"entity_count"`
	RelationshipCount int64 `json:"relationship_count"`
	EmbeddingCount    int64 `json:"embedding_count"`
	CacheEntryCount   int64 `json:"cache_entry_count"`
	FileSizeBytes     int64 `json:"file_size_bytes"`
	OpenConnections   int   `json:"open_connections"`
	IdleConnections   int   `json:"idle_connections"`
}

// Storage is the persistence contract for all §3 entities.
type Storage interface {
	// Codebases
	CreateCodebase(ctx context.Context, cb *models.Codebase) error
	GetCodebase(ctx context.Context, id string) (*models.Codebase, error)
	UpdateCodebase(ctx context.Context, cb *models.Codebase) error
	DeleteCodebase(ctx context.Context, id string) error
	ListCodebases(ctx context.Context) ([]*models.Codebase, error)

	// Code entities
	UpsertEntity(ctx context.Context, e *models.CodeEntity) error
	GetEntity(ctx context.Context, id string) (*models.CodeEntity, error)
	FindEntity(ctx context.Context, codebaseID, qualifiedName, filePath string) (*models.CodeEntity, error)
	ListEntities(ctx context.Context, codebaseID string) ([]*models.CodeEntity, error)
	DeleteEntitiesByFile(ctx context.Context, codebaseID, filePath string) error

	// Relationships
	UpsertRelationships(ctx context.Context, rels []*models.CodeRelationship) error
	RelationshipsFrom(ctx context.Context, entityID string) ([]*models.CodeRelationship, error)
	RelationshipsTo(ctx context.Context, entityID string) ([]*models.CodeRelationship, error)

	// Embeddings
	PutEmbedding(ctx context.Context, e *models.Embedding) error
	GetEmbeddingByHash(ctx context.Context, contentHash string) (*models.Embedding, error)
	GetEmbeddingByEntity(ctx context.Context, entityID string) (*models.Embedding, error)

	// Cache entries (durable tier backing internal/cache)
	PutCacheEntry(ctx context.Context, e *models.CacheEntry) error
	GetCacheEntry(ctx context.Context, key string) (*models.CacheEntry, error)
	DeleteCacheEntry(ctx context.Context, key string) error
	ListExpiredCacheEntries(ctx context.Context, before time.Time) ([]string, error)

	// Transactions
	ExecuteTransaction(ctx context.Context, f func(ctx context.Context) error) error

	// Maintenance
	Backup(ctx context.Context, path string) error
	Optimize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
