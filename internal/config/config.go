// Package config provides configuration loading and structs for the
// codesight server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/codesight/internal/models"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Cache     models.CacheConfig `yaml:"cache"`
}

// IndexerConfig holds worker-pool, queueing, and retry settings for
// internal/indexer.
type IndexerConfig struct {
	NumWorkers        int      `yaml:"num_workers"`
	HeavyWorkers      int      `yaml:"heavy_workers"`
	Policy            string   `yaml:"policy"`
	QueueCapacity     int      `yaml:"queue_capacity"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	IgnoreDirs        []string `yaml:"ignore_dirs"`
	MaxRetries        int      `yaml:"max_retries"`
	RetryBaseMillis   int      `yaml:"retry_base_millis"`
}

// RetryBase returns the configured retry backoff base as a Duration.
func (i IndexerConfig) RetryBase() time.Duration {
	return time.Duration(i.RetryBaseMillis) * time.Millisecond
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for database and indices.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	FAISSIndexPath  string `yaml:"faiss_index_path"`
	VectorIndexType string `yaml:"vector_index_type"`
}

// EmbeddingConfig holds ONNX embedder settings.
type EmbeddingConfig struct {
	ModelPath       string `yaml:"model_path"`
	Dimensions      int    `yaml:"dimensions"`
	MaxTokens       int    `yaml:"max_tokens"`
	UseQuantization bool   `yaml:"use_quantization"`
	CacheSize       int    `yaml:"cache_size"`
}

// SearchConfig holds query-engine settings: candidate fan-out, score
// floors, result caching, and per-intent defaults (§4.5).
type SearchConfig struct {
	DefaultLimit            int     `yaml:"default_limit"`
	MaxLimit                int     `yaml:"max_limit"`
	TopKCandidates          int     `yaml:"top_k_candidates"`
	DefaultMinKeywordScore  float64 `yaml:"default_min_keyword_score"`
	DefaultMinSemanticScore float64 `yaml:"default_min_semantic_score"`
	DefaultTimeoutSeconds   int     `yaml:"default_timeout_seconds"`
	FuzzyCacheThreshold     float64 `yaml:"fuzzy_cache_threshold"`
	CacheTTLDefaultMinutes  int     `yaml:"cache_ttl_default_minutes"`
	CacheTTLLongMinutes     int     `yaml:"cache_ttl_long_minutes"`
	CacheTTLShortMinutes    int     `yaml:"cache_ttl_short_minutes"`
	SecurityAuditTokens     []string `yaml:"security_audit_tokens"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.FAISSIndexPath = expandPath(cfg.Storage.FAISSIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
