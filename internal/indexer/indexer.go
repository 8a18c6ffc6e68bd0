// Package indexer discovers source files under a codebase root, parses
// them into code entities and relationships, and persists the result
// through storage, the vector index, and the keyword index.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/codesight/internal/codeerr"
	"github.com/hyperjump/codesight/internal/embedding"
	"github.com/hyperjump/codesight/internal/keyword"
	"github.com/hyperjump/codesight/internal/models"
	"github.com/hyperjump/codesight/internal/parser"
	"github.com/hyperjump/codesight/internal/storage"
	"github.com/hyperjump/codesight/internal/vector"
)

// defaultIgnoreDirs are skipped regardless of configuration, matching the
// conventions of every language ecosystem in the corpus.
var defaultIgnoreDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"target":       true,
	"dist":         true,
	"build":        true,
}

// Options tunes the indexer's worker pool, queueing, and retry behavior.
type Options struct {
	NumWorkers        int
	HeavyWorkers      int
	Policy            LoadBalancePolicy
	QueueCapacity     int
	AllowedExtensions []string
	IgnoreDirs        []string
	MaxRetries        int
	RetryBase         time.Duration
}

func (o Options) withDefaults() Options {
	if o.NumWorkers <= 0 {
		o.NumWorkers = runtime.GOMAXPROCS(0)
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 256
	}
	if o.Policy == "" {
		o.Policy = PolicyRoundRobin
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 100 * time.Millisecond
	}
	return o
}

// ParserFactory builds a Parser for the exclusive use of one worker.
// Parser instances are never shared across goroutines.
type ParserFactory func() parser.Parser

// Indexer coordinates scanning, parsing, embedding, and persisting a
// codebase's entities.
type Indexer struct {
	storage       storage.Storage
	embedder      embedding.Embedder
	vectorIndex   vector.VectorIndex
	keywordIndex  keyword.KeywordIndex
	parserFactory ParserFactory
	opts          Options
	logger        *zap.Logger

	tracker   *Tracker
	observers *ObserverManager
	stopped   atomic.Bool
}

// NewIndexer constructs an Indexer. logger may be nil.
func NewIndexer(
	st storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	keywordIndex keyword.KeywordIndex,
	parserFactory ParserFactory,
	opts Options,
	logger *zap.Logger,
) *Indexer {
	return &Indexer{
		storage:       st,
		embedder:      embedder,
		vectorIndex:   vectorIndex,
		keywordIndex:  keywordIndex,
		parserFactory: parserFactory,
		opts:          opts.withDefaults(),
		logger:        logger,
		tracker:       NewTracker(),
		observers:     NewObserverManager(),
	}
}

// Observers exposes the subscriber registry for progress notifications.
func (idx *Indexer) Observers() *ObserverManager { return idx.observers }

// Progress returns the current run's progress snapshot.
func (idx *Indexer) Progress() Summary { return idx.tracker.Summary() }

// Stop flips the shared cancellation flag; workers finish their current
// task, discard the tasks still dispatched to them until the queue is
// drained, then exit.
func (idx *Indexer) Stop() { idx.stopped.Store(true) }

// Stopped reports whether Stop has been called for the current run.
func (idx *Indexer) Stopped() bool { return idx.stopped.Load() }

// scan walks cb's root and builds one task per candidate file.
func (idx *Indexer) scan(cb *models.Codebase) ([]*models.IndexingTask, error) {
	ignore := defaultIgnoreDirs
	if len(idx.opts.IgnoreDirs) > 0 {
		ignore = make(map[string]bool, len(defaultIgnoreDirs)+len(idx.opts.IgnoreDirs))
		for k := range defaultIgnoreDirs {
			ignore[k] = true
		}
		for _, d := range idx.opts.IgnoreDirs {
			ignore[d] = true
		}
	}

	var tasks []*models.IndexingTask
	err := filepath.WalkDir(cb.RootPath, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if ignore[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !extensionAllowed(path, idx.opts.AllowedExtensions) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(cb.RootPath, path)
		if err != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		tasks = append(tasks, &models.IndexingTask{
			ID:            deterministicTaskID(cb.ID, rel),
			CodebaseID:    cb.ID,
			FilePath:      rel,
			Priority:      models.PriorityTaskNormal,
			EstimatedSize: info.Size(),
			CreatedAt:     time.Now().UTC(),
		})
		return nil
	})
	return tasks, err
}

func extensionAllowed(path string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == ext {
			return true
		}
	}
	return false
}

func deterministicTaskID(codebaseID, relPath string) string {
	sum := sha256.Sum256([]byte(codebaseID + "|" + relPath))
	return hex.EncodeToString(sum[:])
}

// IndexCodebase scans cb's root, dispatches one task per candidate file to
// the worker pool, and blocks until every task reaches a terminal state or
// ctx is cancelled.
func (idx *Indexer) IndexCodebase(ctx context.Context, cb *models.Codebase) error {
	idx.stopped.Store(false)
	idx.tracker.Start(0)
	idx.observers.NotifyProgress(idx.tracker.Summary())

	tasks, err := idx.scan(cb)
	if err != nil {
		idx.tracker.Fail(err.Error())
		return fmt.Errorf("scan codebase: %w", err)
	}

	deps := NewDependencyTracker()
	for _, t := range tasks {
		if err := deps.Submit(t); err != nil {
			idx.tracker.Fail(err.Error())
			return err
		}
	}

	idx.tracker.SetIndexing(len(tasks))
	idx.observers.NotifyProgress(idx.tracker.Summary())

	queue := NewTaskQueue(idx.opts.QueueCapacity)
	disp := newDispatcher(idx.opts.Policy, idx.opts.NumWorkers, idx.opts.HeavyWorkers)

	workerChans := make([]chan *models.IndexingTask, idx.opts.NumWorkers)
	for i := range workerChans {
		workerChans[i] = make(chan *models.IndexingTask, 1)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return idx.feed(gctx, queue, deps, tasks) })
	g.Go(func() error { return idx.dispatchLoop(gctx, queue, workerChans, disp) })

	for w := 0; w < idx.opts.NumWorkers; w++ {
		workerID := w
		g.Go(func() error { return idx.runWorker(gctx, cb, workerID, queue, workerChans[workerID], deps, disp) })
	}

	if err := g.Wait(); err != nil {
		idx.tracker.Fail(err.Error())
		return err
	}

	if idx.stopped.Load() {
		idx.tracker.Cancel()
	} else {
		idx.tracker.Complete()
	}
	idx.observers.NotifyComplete(idx.tracker.Summary())
	return nil
}

// IndexFile re-parses and re-persists a single file without running a full
// scan, for incremental updates driven by a file watcher. It reuses a
// fresh parser instance and the same per-file pipeline as a scheduled run.
func (idx *Indexer) IndexFile(ctx context.Context, cb *models.Codebase, relPath string) error {
	p := idx.parserFactory()
	task := &models.IndexingTask{
		ID:         deterministicTaskID(cb.ID, relPath),
		CodebaseID: cb.ID,
		FilePath:   relPath,
		Priority:   models.PriorityTaskHigh,
		CreatedAt:  time.Now().UTC(),
	}
	before := len(idx.tracker.Summary().Errors)
	idx.processTask(ctx, cb, p, task)
	after := idx.tracker.Summary().Errors
	if len(after) > before {
		return fmt.Errorf("reindex %s: %s", relPath, after[len(after)-1].Message)
	}
	return nil
}

// feed releases tasks to queue as their dependencies complete, polling at
// a short interval when nothing is ready, and closes queue once every task
// has been submitted.
func (idx *Indexer) feed(ctx context.Context, queue *TaskQueue, deps *DependencyTracker, tasks []*models.IndexingTask) error {
	remaining := append([]*models.IndexingTask(nil), tasks...)
	for len(remaining) > 0 {
		next := remaining[:0:0]
		progressed := false
		for _, t := range remaining {
			if deps.Ready(t.ID) {
				if err := queue.Enqueue(ctx, t); err != nil {
					return err
				}
				progressed = true
			} else {
				next = append(next, t)
			}
		}
		remaining = next
		if !progressed && len(remaining) > 0 {
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	queue.Close()
	return nil
}

// dispatchLoop pulls the next ready task off queue (High before Normal
// before Low) and hands it to the worker the load-balancing policy selects,
// marking that worker's pending load immediately so the next pick reflects
// the assignment. It closes every worker channel once queue is drained, so
// runWorker goroutines exit after finishing whatever they were handed.
func (idx *Indexer) dispatchLoop(ctx context.Context, queue *TaskQueue, workerChans []chan *models.IndexingTask, disp *dispatcher) error {
	defer closeWorkerChans(workerChans)
	for {
		task, ok, err := queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		widx := disp.pick(task.EstimatedSize, task.Priority == models.PriorityTaskHigh)
		disp.begin(widx)
		select {
		case workerChans[widx] <- task:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func closeWorkerChans(chans []chan *models.IndexingTask) {
	for _, c := range chans {
		close(c)
	}
}

func (idx *Indexer) runWorker(ctx context.Context, cb *models.Codebase, workerID int, queue *TaskQueue, tasksCh <-chan *models.IndexingTask, deps *DependencyTracker, disp *dispatcher) error {
	p := idx.parserFactory()
	for {
		if idx.stopped.Load() {
			// Discard what is still dispatched so dispatchLoop can drain the
			// queue and close this channel instead of blocking on a send.
			for range tasksCh {
			}
			return nil
		}
		var task *models.IndexingTask
		select {
		case t, ok := <-tasksCh:
			if !ok {
				return nil
			}
			task = t
		case <-ctx.Done():
			return ctx.Err()
		}

		start := time.Now()
		before := len(idx.tracker.Summary().Errors)
		idx.processTask(ctx, cb, p, task)
		elapsed := time.Since(start)
		after := len(idx.tracker.Summary().Errors)
		if after > before {
			queue.RecordFailure(elapsed)
		} else {
			queue.RecordCompletion(elapsed)
		}
		disp.finish(workerID, elapsed.Nanoseconds())
		deps.MarkDone(task.ID)
	}
}

// processTask runs steps (1)-(7) of per-task processing for a single file.
// Per-file errors are recorded on the tracker; they never abort the run.
func (idx *Indexer) processTask(ctx context.Context, cb *models.Codebase, p parser.Parser, task *models.IndexingTask) {
	absPath := filepath.Join(cb.RootPath, task.FilePath)

	content, err := os.ReadFile(absPath)
	if err != nil {
		idx.recordFileError(task.FilePath, err, classifyReadError(err))
		return
	}

	result, err := idx.parseRecovering(p, absPath, content)
	if err != nil {
		idx.recordFileError(task.FilePath, err, ErrorParse)
		return
	}
	if len(result.Errors) > 0 && len(result.Entities) == 0 {
		idx.recordFileError(task.FilePath, fmt.Errorf("%s", strings.Join(result.Errors, "; ")), ErrorParse)
		return
	}

	language, _ := p.DetectLanguage(absPath)

	entities := make([]*models.CodeEntity, 0, len(result.Entities))
	texts := make([]string, 0, len(result.Entities))
	needsEmbedding := make([]bool, 0, len(result.Entities))

	for _, pe := range result.Entities {
		entity, needsEmbed, err := idx.resolveEntity(ctx, cb, task.FilePath, language, pe)
		if err != nil {
			idx.recordFileError(task.FilePath, err, ErrorUnknown)
			continue
		}
		entities = append(entities, entity)
		needsEmbedding = append(needsEmbedding, needsEmbed)
		texts = append(texts, embeddingText(entity))
	}

	var embeddings [][]float32
	if idx.embedder != nil && len(texts) > 0 {
		embeddings, err = idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			idx.recordFileError(task.FilePath, err, ErrorUnknown)
			embeddings = nil
		}
	}

	err = retryWithBackoff(ctx, idx.opts.MaxRetries, idx.opts.RetryBase, func() error {
		return idx.storage.ExecuteTransaction(ctx, func(ctx context.Context) error {
			for i, entity := range entities {
				var emb *models.Embedding
				if i < len(embeddings) && needsEmbedding[i] {
					emb = models.NewEmbedding(entity.ASTHash, embeddings[i], models.ModelDescriptor{
						Name:             "codesight-embedder",
						OutputDimensions: idx.embedder.Dimensions(),
					})
					emb.EntityID = entity.ID
					entity.EmbeddingID = emb.ID
				}
				if err := idx.storage.UpsertEntity(ctx, entity); err != nil {
					return codeerr.Wrap(codeerr.Storage, "upsert entity", err).WithSubject(entity.ID)
				}
				if emb != nil {
					if err := idx.storage.PutEmbedding(ctx, emb); err != nil {
						return codeerr.Wrap(codeerr.Storage, "put embedding", err).WithSubject(entity.ID)
					}
				}
			}
			return nil
		})
	})
	if err != nil {
		idx.recordFileError(task.FilePath, err, ErrorUnknown)
		return
	}

	if idx.vectorIndex != nil {
		ids := make([]string, 0, len(entities))
		vecs := make([][]float32, 0, len(entities))
		for i, entity := range entities {
			if i < len(embeddings) && needsEmbedding[i] {
				ids = append(ids, entity.ID)
				vecs = append(vecs, embeddings[i])
			}
		}
		if len(ids) > 0 {
			if err := idx.vectorIndex.Add(ctx, ids, vecs); err != nil {
				idx.recordFileError(task.FilePath, err, ErrorUnknown)
			}
		}
	}

	if idx.keywordIndex != nil {
		for _, entity := range entities {
			if err := idx.keywordIndex.Index(ctx, entity); err != nil {
				idx.recordFileError(task.FilePath, err, ErrorUnknown)
			}
		}
	}

	idx.tracker.FileProcessed(task.FilePath, len(entities))
	idx.observers.NotifyProgress(idx.tracker.Summary())
	if idx.logger != nil {
		idx.logger.Debug("indexer file processed",
			zap.String("path", task.FilePath), zap.Int("entities", len(entities)))
	}
}

// parseRecovering calls the parser, converting a panic into a ParseError
// the way a storage-layer failure is converted into a typed error.
func (idx *Indexer) parseRecovering(p parser.Parser, path string, content []byte) (result *parser.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panicked: %v", r)
		}
	}()
	return p.ParseFile(path, content)
}

func (idx *Indexer) recordFileError(path string, err error, kind FileErrorKind) {
	idx.tracker.AddError(path, err.Error(), kind)
	idx.observers.NotifyError(FileError{FilePath: path, Message: err.Error(), Kind: kind, Timestamp: time.Now()})
	if idx.logger != nil {
		idx.logger.Warn("indexer file error", zap.String("path", path), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func classifyReadError(err error) FileErrorKind {
	if os.IsNotExist(err) {
		return ErrorFileNotFound
	}
	if os.IsPermission(err) {
		return ErrorPermissionDenied
	}
	return ErrorUnknown
}

// resolveEntity converts a parser.Entity into a models.CodeEntity, reusing
// the existing identity and skipping re-embedding when the AST hash is
// unchanged (the §3 change-detection invariant).
func (idx *Indexer) resolveEntity(ctx context.Context, cb *models.Codebase, filePath, language string, pe parser.Entity) (*models.CodeEntity, bool, error) {
	qualifiedName := qualifiedNameFor(filePath, pe.Name)
	hash := astHash(pe.Content)

	existing, err := idx.storage.FindEntity(ctx, cb.ID, qualifiedName, filePath)
	if err == nil && existing != nil {
		if existing.ASTHash == hash {
			return existing, false, nil
		}
		now := time.Now().UTC()
		existing.Kind = pe.Kind
		existing.StartLine = pe.StartLine
		existing.EndLine = pe.EndLine
		existing.StartColumn = pe.StartColumn
		existing.EndColumn = pe.EndColumn
		existing.Language = language
		existing.Signature = pe.Signature
		existing.Visibility = visibilityOrDefault(pe.Visibility)
		existing.Documentation = pe.Documentation
		existing.ASTHash = hash
		existing.UpdatedAt = &now
		return existing, true, nil
	}

	entity := models.NewCodeEntity(cb.ID, pe.Kind, pe.Name, qualifiedName, filePath)
	entity.StartLine = pe.StartLine
	entity.EndLine = pe.EndLine
	entity.StartColumn = pe.StartColumn
	entity.EndColumn = pe.EndColumn
	entity.Language = language
	entity.Signature = pe.Signature
	entity.Visibility = visibilityOrDefault(pe.Visibility)
	entity.Documentation = pe.Documentation
	entity.ASTHash = hash
	return entity, true, nil
}

func visibilityOrDefault(v models.Visibility) models.Visibility {
	if v == "" {
		return models.VisibilityPublic
	}
	return v
}

func qualifiedNameFor(filePath, name string) string {
	rel := strings.TrimSuffix(filePath, filepath.Ext(filePath))
	rel = strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
	return rel + "." + name
}

func astHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func embeddingText(e *models.CodeEntity) string {
	var b strings.Builder
	b.WriteString(e.QualifiedName)
	if e.Signature != "" {
		b.WriteString(" ")
		b.WriteString(e.Signature)
	}
	if e.Documentation != "" {
		b.WriteString("\n")
		b.WriteString(e.Documentation)
	}
	return b.String()
}
