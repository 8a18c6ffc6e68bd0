package indexer

import (
	"context"
	"sync"
	"time"

	"github.com/hyperjump/codesight/internal/models"
)

// QueueMetrics tracks cumulative queue activity: tasks added, dequeued,
// completed, and failed, plus running averages of queue wait time (enqueue
// to dequeue) and worker processing time (dequeue to outcome).
type QueueMetrics struct {
	mu                    sync.Mutex
	TasksAdded            uint64
	TasksDequeued         uint64
	TasksCompleted        uint64
	TasksFailed           uint64
	AverageWaitTime       time.Duration
	AverageProcessingTime time.Duration

	waitSum       time.Duration
	processingSum time.Duration
}

func (m *QueueMetrics) added() {
	m.mu.Lock()
	m.TasksAdded++
	m.mu.Unlock()
}

func (m *QueueMetrics) dequeued(wait time.Duration) {
	m.mu.Lock()
	m.TasksDequeued++
	m.waitSum += wait
	m.mu.Unlock()
}

func (m *QueueMetrics) completed(processing time.Duration) {
	m.mu.Lock()
	m.TasksCompleted++
	m.processingSum += processing
	m.mu.Unlock()
}

func (m *QueueMetrics) failed(processing time.Duration) {
	m.mu.Lock()
	m.TasksFailed++
	m.processingSum += processing
	m.mu.Unlock()
}

// Snapshot returns a copy of the current counters, with the averages
// computed from the running sums at the time of the call.
func (m *QueueMetrics) Snapshot() QueueMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := QueueMetrics{
		TasksAdded:     m.TasksAdded,
		TasksDequeued:  m.TasksDequeued,
		TasksCompleted: m.TasksCompleted,
		TasksFailed:    m.TasksFailed,
	}
	if m.TasksDequeued > 0 {
		snap.AverageWaitTime = m.waitSum / time.Duration(m.TasksDequeued)
	}
	if done := m.TasksCompleted + m.TasksFailed; done > 0 {
		snap.AverageProcessingTime = m.processingSum / time.Duration(done)
	}
	return snap
}

// TaskQueue holds three bounded FIFO sub-queues keyed by priority. Enqueue
// blocks once a sub-queue is full, providing the backpressure the indexer
// needs under a slow worker pool. Dequeue drains High before Normal before
// Low, preserving FIFO order within a level.
type TaskQueue struct {
	high, normal, low chan *models.IndexingTask
	closed            chan struct{}
	closeOnce         sync.Once
	metrics           QueueMetrics
}

// NewTaskQueue creates a queue whose sub-queues each hold up to capacity
// tasks before Enqueue blocks.
func NewTaskQueue(capacity int) *TaskQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &TaskQueue{
		high:   make(chan *models.IndexingTask, capacity),
		normal: make(chan *models.IndexingTask, capacity),
		low:    make(chan *models.IndexingTask, capacity),
		closed: make(chan struct{}),
	}
}

// Enqueue submits task to its priority sub-queue, blocking if that
// sub-queue is at capacity until ctx is cancelled.
func (q *TaskQueue) Enqueue(ctx context.Context, task *models.IndexingTask) error {
	ch := q.channelFor(task.Priority)
	select {
	case ch <- task:
		q.metrics.added()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *TaskQueue) channelFor(p models.TaskPriority) chan *models.IndexingTask {
	switch p {
	case models.PriorityTaskHigh:
		return q.high
	case models.PriorityTaskLow:
		return q.low
	default:
		return q.normal
	}
}

func (q *TaskQueue) recordDequeue(t *models.IndexingTask) (*models.IndexingTask, bool, error) {
	var wait time.Duration
	if !t.CreatedAt.IsZero() {
		wait = time.Since(t.CreatedAt)
	}
	q.metrics.dequeued(wait)
	return t, true, nil
}

// Dequeue returns the next task to run, preferring High, then Normal, then
// Low. It blocks until a task is available, the queue is closed and
// drained (ok=false), or ctx is cancelled.
func (q *TaskQueue) Dequeue(ctx context.Context) (task *models.IndexingTask, ok bool, err error) {
	for {
		select {
		case t := <-q.high:
			return q.recordDequeue(t)
		default:
		}
		// Non-blocking drain of normal before falling into a blocking select
		// that also includes low: Go's select among ready channels picks
		// pseudo-randomly, which would not honor Normal-before-Low FIFO.
		select {
		case t := <-q.normal:
			return q.recordDequeue(t)
		default:
		}
		select {
		case t := <-q.high:
			return q.recordDequeue(t)
		case t := <-q.normal:
			return q.recordDequeue(t)
		case t := <-q.low:
			return q.recordDequeue(t)
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-q.closed:
			select {
			case t := <-q.high:
				return q.recordDequeue(t)
			case t := <-q.normal:
				return q.recordDequeue(t)
			case t := <-q.low:
				return q.recordDequeue(t)
			default:
				return nil, false, nil
			}
		}
	}
}

// Len reports the combined number of tasks currently queued.
func (q *TaskQueue) Len() int {
	return len(q.high) + len(q.normal) + len(q.low)
}

// Close signals that no further tasks will be enqueued; Dequeue callers
// drain whatever remains, then return ok=false.
func (q *TaskQueue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Metrics returns a snapshot of cumulative queue activity.
func (q *TaskQueue) Metrics() QueueMetrics {
	return q.metrics.Snapshot()
}

// RecordCompletion records that a dequeued task finished without error,
// contributing processing to the queue's average processing time.
func (q *TaskQueue) RecordCompletion(processing time.Duration) {
	q.metrics.completed(processing)
}

// RecordFailure records that a dequeued task finished with an error,
// contributing processing to the queue's average processing time.
func (q *TaskQueue) RecordFailure(processing time.Duration) {
	q.metrics.failed(processing)
}
