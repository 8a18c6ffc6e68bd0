package indexer

import (
	"sync"
	"time"
)

// Status is the indexer's run-level lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusScanning   Status = "scanning"
	StatusIndexing   Status = "indexing"
	StatusCompleting Status = "completing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// FileErrorKind categorizes a per-file failure.
type FileErrorKind string

const (
	ErrorFileNotFound     FileErrorKind = "file_not_found"
	ErrorPermissionDenied FileErrorKind = "permission_denied"
	ErrorParse            FileErrorKind = "parse_error"
	ErrorMemory           FileErrorKind = "memory_error"
	ErrorTimeout          FileErrorKind = "timeout"
	ErrorUnknown          FileErrorKind = "unknown"
)

// FileError is one recorded per-file failure.
type FileError struct {
	FilePath  string
	Message   string
	Kind      FileErrorKind
	Timestamp time.Time
}

// Summary is an immutable snapshot of progress, safe to hand to observers
// and API responses.
type Summary struct {
	TotalFiles      int
	ProcessedFiles  int
	TotalEntities   int
	CurrentFile     string
	Errors          []FileError
	StartTime       time.Time
	Throughput      float64 // files/sec, exponentially-weighted
	ETA             time.Duration
	Status          Status
}

// emaAlpha weights the most recent file's rate against the running
// throughput estimate.
const emaAlpha = 0.3

// Tracker accumulates progress for one indexing run. All methods are safe
// for concurrent use by multiple workers.
type Tracker struct {
	mu             sync.Mutex
	totalFiles     int
	processedFiles int
	totalEntities  int
	currentFile    string
	errors         []FileError
	startTime      time.Time
	lastFileTime   time.Time
	throughput     float64
	status         Status
}

// NewTracker creates an idle tracker.
func NewTracker() *Tracker {
	return &Tracker{status: StatusIdle}
}

// Start resets the tracker for a new run against an estimated file count.
func (t *Tracker) Start(estimatedFiles int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalFiles = estimatedFiles
	t.processedFiles = 0
	t.totalEntities = 0
	t.errors = nil
	t.startTime = time.Now()
	t.lastFileTime = t.startTime
	t.throughput = 0
	t.status = StatusScanning
}

// SetIndexing transitions to Indexing once scanning has produced a final
// file count.
func (t *Tracker) SetIndexing(totalFiles int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalFiles = totalFiles
	t.status = StatusIndexing
}

// FileProcessed records one file's completion and its entity count.
func (t *Tracker) FileProcessed(path string, entityCount int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processedFiles++
	t.totalEntities += entityCount
	t.currentFile = path

	now := time.Now()
	elapsed := now.Sub(t.lastFileTime).Seconds()
	t.lastFileTime = now
	if elapsed > 0 {
		instant := 1.0 / elapsed
		if t.throughput == 0 {
			t.throughput = instant
		} else {
			t.throughput = emaAlpha*instant + (1-emaAlpha)*t.throughput
		}
	}
}

// AddError records a per-file failure; indexing continues regardless.
func (t *Tracker) AddError(path, message string, kind FileErrorKind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errors = append(t.errors, FileError{
		FilePath:  path,
		Message:   message,
		Kind:      kind,
		Timestamp: time.Now(),
	})
}

// Complete marks the run Completed.
func (t *Tracker) Complete() {
	t.mu.Lock()
	t.status = StatusCompleted
	t.mu.Unlock()
}

// Fail marks the run Failed with a system-level error.
func (t *Tracker) Fail(message string) {
	t.mu.Lock()
	t.status = StatusFailed
	t.mu.Unlock()
	t.AddError("", message, ErrorUnknown)
}

// Cancel marks the run Cancelled.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	t.status = StatusCancelled
	t.mu.Unlock()
}

// Summary returns an immutable snapshot, computing ETA from the current
// throughput estimate.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var eta time.Duration
	if t.throughput > 0 {
		remaining := t.totalFiles - t.processedFiles
		if remaining < 0 {
			remaining = 0
		}
		eta = time.Duration(float64(remaining)/t.throughput) * time.Second
	}

	errs := make([]FileError, len(t.errors))
	copy(errs, t.errors)

	return Summary{
		TotalFiles:     t.totalFiles,
		ProcessedFiles: t.processedFiles,
		TotalEntities:  t.totalEntities,
		CurrentFile:    t.currentFile,
		Errors:         errs,
		StartTime:      t.startTime,
		Throughput:     t.throughput,
		ETA:            eta,
		Status:         t.status,
	}
}

// Observer receives ordered progress notifications.
type Observer interface {
	OnProgress(s Summary)
	OnError(e FileError)
	OnComplete(s Summary)
}

// ObserverManager fans a tracker's notifications out to subscribers,
// calling each observer's methods in the order events are issued.
type ObserverManager struct {
	mu        sync.Mutex
	observers []Observer
}

// NewObserverManager creates an empty manager.
func NewObserverManager() *ObserverManager {
	return &ObserverManager{}
}

// Subscribe registers an observer.
func (m *ObserverManager) Subscribe(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

// NotifyProgress delivers a progress snapshot to every observer in order.
func (m *ObserverManager) NotifyProgress(s Summary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.observers {
		o.OnProgress(s)
	}
}

// NotifyError delivers a per-file error to every observer in order.
func (m *ObserverManager) NotifyError(e FileError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.observers {
		o.OnError(e)
	}
}

// NotifyComplete delivers the final summary to every observer in order.
func (m *ObserverManager) NotifyComplete(s Summary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.observers {
		o.OnComplete(s)
	}
}
