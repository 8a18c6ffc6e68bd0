package config

import "github.com/hyperjump/codesight/internal/models"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/codesight/data/db/codesight.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/codesight/data/indices/bleve"
	}
	if cfg.Storage.FAISSIndexPath == "" {
		cfg.Storage.FAISSIndexPath = "/usr/local/var/codesight/data/indices/faiss"
	}
	if cfg.Storage.VectorIndexType == "" {
		cfg.Storage.VectorIndexType = "hnsw"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/codesight/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.TopKCandidates == 0 {
		cfg.Search.TopKCandidates = 100
	}
	if cfg.Search.DefaultMinKeywordScore == 0 {
		cfg.Search.DefaultMinKeywordScore = 0.0
	}
	if cfg.Search.DefaultMinSemanticScore == 0 {
		cfg.Search.DefaultMinSemanticScore = 0.0
	}
	if cfg.Search.DefaultTimeoutSeconds == 0 {
		cfg.Search.DefaultTimeoutSeconds = 30
	}
	if cfg.Search.FuzzyCacheThreshold == 0 {
		cfg.Search.FuzzyCacheThreshold = 0.85
	}
	if cfg.Search.CacheTTLDefaultMinutes == 0 {
		cfg.Search.CacheTTLDefaultMinutes = 60
	}
	if cfg.Search.CacheTTLLongMinutes == 0 {
		cfg.Search.CacheTTLLongMinutes = 120
	}
	if cfg.Search.CacheTTLShortMinutes == 0 {
		cfg.Search.CacheTTLShortMinutes = 30
	}
	if cfg.Search.SecurityAuditTokens == nil {
		cfg.Search.SecurityAuditTokens = []string{"auth", "token", "password", "crypto", "secret", "session", "credential"}
	}
	if cfg.Indexer.NumWorkers == 0 {
		cfg.Indexer.NumWorkers = 4
	}
	if cfg.Indexer.Policy == "" {
		cfg.Indexer.Policy = "adaptive"
	}
	if cfg.Indexer.QueueCapacity == 0 {
		cfg.Indexer.QueueCapacity = 256
	}
	if cfg.Indexer.MaxRetries == 0 {
		cfg.Indexer.MaxRetries = 3
	}
	if cfg.Indexer.RetryBaseMillis == 0 {
		cfg.Indexer.RetryBaseMillis = 100
	}
	if cfg.Indexer.AllowedExtensions == nil {
		cfg.Indexer.AllowedExtensions = []string{"ts", "tsx", "js", "jsx", "mjs", "cjs"}
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = cfg.Indexer.AllowedExtensions
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
	if (cfg.Cache == models.CacheConfig{}) {
		cfg.Cache = models.DefaultCacheConfig()
	}
}
