// Package main is the codesight CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/codesight/internal/cache"
	"github.com/hyperjump/codesight/internal/cli"
	"github.com/hyperjump/codesight/internal/config"
	"github.com/hyperjump/codesight/internal/embedding"
	"github.com/hyperjump/codesight/internal/indexer"
	"github.com/hyperjump/codesight/internal/keyword"
	"github.com/hyperjump/codesight/internal/models"
	"github.com/hyperjump/codesight/internal/parser"
	"github.com/hyperjump/codesight/internal/search"
	"github.com/hyperjump/codesight/internal/server"
	"github.com/hyperjump/codesight/internal/storage"
	"github.com/hyperjump/codesight/internal/vector"
	"github.com/hyperjump/codesight/internal/watcher"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/codesight/config.yaml"

// loadConfig loads config from path. If path is the default and the file does not exist,
// it tries config.yaml in the current directory (for development).
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if path == defaultConfigPath {
			if unwrap := errors.Unwrap(err); unwrap != nil && os.IsNotExist(unwrap) {
				if cwd, cwdErr := os.Getwd(); cwdErr == nil {
					fallback := filepath.Join(cwd, "config.yaml")
					if _, statErr := os.Stat(fallback); statErr == nil {
						cfg, loadErr := config.Load(fallback)
						if loadErr != nil {
							return nil, "", loadErr
						}
						return cfg, fallback, nil
					}
				}
			}
		}
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "index":
		runIndex()
	case "list":
		runList()
	case "delete":
		runDelete()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("codesight version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	exts := cfg.Watch.Extensions
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		exts,
		cfg.Watch.RecursiveOrDefault(),
		func(path string) {
			reindexWatchedFile(context.Background(), components, logger, path)
		},
		func(path string) {
			removeWatchedFile(context.Background(), components, logger, path)
		},
		watcher.WithLogger(logger),
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Storage,
		&cfg.Server,
		logger,
		watchSvc,
		resolvedConfigPath,
		cfg,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// reindexWatchedFile re-parses and re-persists a single file by finding the
// codebase whose root contains it, then running a targeted re-index of just
// that file through a one-off indexing task.
func reindexWatchedFile(ctx context.Context, c *Components, logger *zap.Logger, path string) {
	cb, rel, err := codebaseForPath(ctx, c.Storage, path)
	if err != nil {
		logger.Warn("watch: no codebase owns path", zap.String("path", path), zap.Error(err))
		return
	}
	if err := c.Indexer.IndexFile(ctx, cb, rel); err != nil {
		logger.Warn("watch reindex file failed", zap.String("path", path), zap.Error(err))
	}
}

func removeWatchedFile(ctx context.Context, c *Components, logger *zap.Logger, path string) {
	cb, rel, err := codebaseForPath(ctx, c.Storage, path)
	if err != nil {
		logger.Warn("watch: no codebase owns path", zap.String("path", path), zap.Error(err))
		return
	}
	if err := c.Storage.DeleteEntitiesByFile(ctx, cb.ID, rel); err != nil {
		logger.Warn("watch delete entities failed", zap.String("path", path), zap.Error(err))
	}
}

func codebaseForPath(ctx context.Context, st storage.Storage, absPath string) (*models.Codebase, string, error) {
	codebases, err := st.ListCodebases(ctx)
	if err != nil {
		return nil, "", err
	}
	for _, cb := range codebases {
		rel, err := filepath.Rel(cb.RootPath, absPath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return cb, filepath.ToSlash(rel), nil
	}
	return nil, "", fmt.Errorf("no codebase root contains %s", absPath)
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "codesight search \"query\" -limit 5"
// would otherwise leave -limit unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	codebaseID := fs.String("codebase", "", "codebase id to search")
	limit := fs.Int("limit", 10, "number of results")
	intent := fs.String("intent", "", "query intent (find_function, explain_code, find_usage, trace_flow, security_audit, find_api)")
	format := fs.String("format", "text", "output format: text, compact, json")
	searchArgs := searchArgsReorder(os.Args[2:])
	_ = fs.Parse(searchArgs)

	if fs.NArg() < 1 {
		fmt.Println("Usage: codesight search [flags] <query>")
		os.Exit(1)
	}
	if *codebaseID == "" {
		fmt.Println("Usage: codesight search --codebase <id> [flags] <query>")
		os.Exit(1)
	}
	queryStr := fs.Arg(0)

	q := &models.Query{
		Text:    queryStr,
		Kind:    models.QueryHybrid,
		Intent:  models.QueryIntent(*intent),
		Limit:   *limit,
		Options: models.DefaultQueryOptions(),
	}

	if *serverURL != "" {
		resp, err := searchViaHTTP(*serverURL, *codebaseID, q)
		if err != nil {
			fmt.Printf("Search failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteQueryResults(os.Stdout, resp, cli.SearchOutputFormat(*format))
		return
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	resp, err := components.Engine.Search(context.Background(), *codebaseID, q)
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteQueryResults(os.Stdout, resp, cli.SearchOutputFormat(*format))
}

func searchViaHTTP(serverURL, codebaseID string, q *models.Query) (*models.QueryResponse, error) {
	payload := struct {
		CodebaseID string `json:"codebase_id"`
		*models.Query
	}{CodebaseID: codebaseID, Query: q}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	name := fs.String("name", "", "codebase name (defaults to directory name)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: codesight index [flags] <root-path>")
		os.Exit(1)
	}
	rootPath, err := filepath.Abs(fs.Arg(0))
	if err != nil {
		fmt.Printf("Invalid path: %v\n", err)
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	codebaseName := *name
	if codebaseName == "" {
		codebaseName = filepath.Base(rootPath)
	}
	cb := models.NewCodebase(codebaseName, rootPath)
	if err := cb.Validate(); err != nil {
		fmt.Printf("Invalid codebase: %v\n", err)
		os.Exit(1)
	}
	if err := components.Storage.CreateCodebase(context.Background(), cb); err != nil {
		fmt.Printf("Failed to register codebase: %v\n", err)
		os.Exit(1)
	}
	_ = cb.TransitionTo(models.CodebaseIndexing)
	_ = components.Storage.UpdateCodebase(context.Background(), cb)

	if err := components.Indexer.IndexCodebase(context.Background(), cb); err != nil {
		_ = cb.TransitionTo(models.CodebaseError)
		_ = components.Storage.UpdateCodebase(context.Background(), cb)
		fmt.Printf("Indexing failed: %v\n", err)
		os.Exit(1)
	}
	summary := components.Indexer.Progress()
	cb.FileCount = summary.ProcessedFiles
	_ = cb.TransitionTo(models.CodebaseIndexed)
	_ = components.Storage.UpdateCodebase(context.Background(), cb)

	fmt.Printf("Codebase indexed: %s (%d files, %d entities)\n", cb.ID, summary.ProcessedFiles, summary.TotalEntities)
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	codebases, err := components.Storage.ListCodebases(context.Background())
	if err != nil {
		fmt.Printf("Failed to list codebases: %v\n", err)
		os.Exit(1)
	}
	for _, cb := range codebases {
		fmt.Printf("%s\t%s\t%s\t%d files\n", cb.ID, cb.Name, cb.Status, cb.FileCount)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: codesight watch <add|remove|list> [path]")
		fmt.Println("  codesight watch add <path>     Add directory to watch")
		fmt.Println("  codesight watch remove <path>  Remove directory from watch")
		fmt.Println("  codesight watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[3:])
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: codesight watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: codesight watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/watch/directories")
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: codesight delete [flags] <codebase-id>")
		os.Exit(1)
	}
	codebaseID := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	if err := components.Storage.DeleteCodebase(context.Background(), codebaseID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Codebase deleted: %s\n", codebaseID)
}

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  vector.VectorIndex
	KeywordIndex keyword.KeywordIndex
	Engine       *search.Engine
	Indexer      *indexer.Indexer
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	st, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
	)
	if err != nil {
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = onnxEmbedder
	}

	vectorIndex, err := vector.NewVectorIndex(cfg.Storage.VectorIndexType, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	cacheStore := cache.New(cfg.Cache)
	resultCache := search.NewResultCache(
		cacheStore,
		cfg.Search.FuzzyCacheThreshold,
		cfg.Search.CacheTTLDefaultMinutes,
		cfg.Search.CacheTTLLongMinutes,
		cfg.Search.CacheTTLShortMinutes,
	)

	engine := search.NewEngine(st, embedder, vectorIndex, keywordIndex, resultCache, cfg.Search, logger)
	idx := indexer.NewIndexer(st, embedder, vectorIndex, keywordIndex,
		func() parser.Parser { return parser.NewTreeSitterParser() },
		indexer.Options{
			NumWorkers:        cfg.Indexer.NumWorkers,
			HeavyWorkers:      cfg.Indexer.HeavyWorkers,
			Policy:            indexer.LoadBalancePolicy(cfg.Indexer.Policy),
			QueueCapacity:     cfg.Indexer.QueueCapacity,
			AllowedExtensions: cfg.Indexer.AllowedExtensions,
			IgnoreDirs:        cfg.Indexer.IgnoreDirs,
			MaxRetries:        cfg.Indexer.MaxRetries,
			RetryBase:         cfg.Indexer.RetryBase(),
		},
		logger,
	)

	return &Components{
		Storage:      st,
		Embedder:     embedder,
		VectorIndex:  vectorIndex,
		KeywordIndex: keywordIndex,
		Engine:       engine,
		Indexer:      idx,
	}, nil
}

func printUsage() {
	fmt.Println(`codesight - Hybrid keyword/semantic code search engine

Usage:
  codesight server [flags]             Start the HTTP server
  codesight index [flags] <path>       Register and index a codebase root
  codesight search [flags] <query>     Search an indexed codebase
  codesight list [flags]               List registered codebases
  codesight delete [flags] <id>        Delete a codebase
  codesight watch <add|remove|list>    Manage watched directories
  codesight version                    Show version
  codesight help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/codesight/config.yaml)

Index Flags:
  --config string    Config file path
  --name string      Codebase name (default: directory name)

Search Flags:
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty to access storage directly.
  --codebase string  Codebase id to search (required)
  --limit int        Number of results (default: 10)
  --intent string    Query intent (find_function, explain_code, find_usage, trace_flow, security_audit, find_api)
  --format string     Output format: text, compact, json (default: text)

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)

Examples:
  codesight index /path/to/repo
  codesight search --codebase abc123 "process payment"
  codesight search --codebase abc123 --intent find_function "ProcessPayment"
  codesight watch add /path/to/repo
  codesight watch list`)
}
