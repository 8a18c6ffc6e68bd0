package indexer

import "sync/atomic"

// LoadBalancePolicy selects which idle worker the dispatcher hands the next
// task to.
type LoadBalancePolicy string

const (
	PolicyRoundRobin    LoadBalancePolicy = "round_robin"
	PolicyLeastLoaded   LoadBalancePolicy = "least_loaded"
	PolicyPriorityBased LoadBalancePolicy = "priority_based"
	PolicySizeAware     LoadBalancePolicy = "size_aware"
	PolicyAdaptive      LoadBalancePolicy = "adaptive"
)

// heavyFileThreshold is the file size, in bytes, above which SizeAware
// routes a task to a heavy worker.
const heavyFileThreshold = 256 * 1024

// adaptiveDurationRatio is how far per-worker task durations must diverge
// (slowest/fastest) before Adaptive switches from RoundRobin to SizeAware.
const adaptiveDurationRatio = 3.0

// adaptiveQueueDepthThreshold is the queue depth above which Adaptive
// switches to LeastLoaded.
const adaptiveQueueDepthThreshold = 64

// workerStats is the load information the dispatcher consults. pending and
// totalNanos are updated atomically by workers as they pick up and finish
// tasks, so the dispatcher can read them without a lock.
type workerStats struct {
	id         int
	heavy      bool
	pending    int64
	totalNanos int64
	taskCount  int64
}

func (w *workerStats) load() int64 { return atomic.LoadInt64(&w.pending) }

// dispatcher picks a worker index for the next task under a policy. It
// holds per-worker stats and round-robin cursor state; callers serialize
// access to it via the indexer's single dispatch goroutine.
type dispatcher struct {
	policy  LoadBalancePolicy
	workers []*workerStats
	cursor  int
}

func newDispatcher(policy LoadBalancePolicy, numWorkers, numHeavy int) *dispatcher {
	workers := make([]*workerStats, numWorkers)
	for i := range workers {
		workers[i] = &workerStats{id: i, heavy: i < numHeavy}
	}
	return &dispatcher{policy: policy, workers: workers}
}

// pick returns the index of the worker that should receive a task of the
// given estimated size and priority.
func (d *dispatcher) pick(estimatedSize int64, highPriority bool) int {
	switch d.effectivePolicy() {
	case PolicyLeastLoaded:
		return d.leastLoaded(d.workers)
	case PolicySizeAware:
		return d.sizeAware(estimatedSize)
	case PolicyPriorityBased:
		if highPriority {
			return d.leastLoaded(d.workers)
		}
		return d.roundRobin()
	default: // RoundRobin and the RoundRobin phase of Adaptive
		return d.roundRobin()
	}
}

// effectivePolicy resolves Adaptive to the concrete policy its current
// observations select.
func (d *dispatcher) effectivePolicy() LoadBalancePolicy {
	if d.policy != PolicyAdaptive {
		return d.policy
	}
	maxDepth := int64(0)
	for _, w := range d.workers {
		if l := w.load(); l > maxDepth {
			maxDepth = l
		}
	}
	if maxDepth > adaptiveQueueDepthThreshold {
		return PolicyLeastLoaded
	}
	if d.durationRatio() > adaptiveDurationRatio {
		return PolicySizeAware
	}
	return PolicyRoundRobin
}

// durationRatio is the ratio between the slowest and fastest observed
// average task duration across workers with at least one completed task.
func (d *dispatcher) durationRatio() float64 {
	var minAvg, maxAvg float64
	first := true
	for _, w := range d.workers {
		count := atomic.LoadInt64(&w.taskCount)
		if count == 0 {
			continue
		}
		avg := float64(atomic.LoadInt64(&w.totalNanos)) / float64(count)
		if first {
			minAvg, maxAvg = avg, avg
			first = false
			continue
		}
		if avg < minAvg {
			minAvg = avg
		}
		if avg > maxAvg {
			maxAvg = avg
		}
	}
	if first || minAvg == 0 {
		return 0
	}
	return maxAvg / minAvg
}

func (d *dispatcher) roundRobin() int {
	idx := d.cursor % len(d.workers)
	d.cursor++
	return idx
}

func (d *dispatcher) leastLoaded(pool []*workerStats) int {
	best := 0
	bestLoad := pool[0].load()
	for i, w := range pool[1:] {
		if l := w.load(); l < bestLoad {
			best = i + 1
			bestLoad = l
		}
	}
	return pool[best].id
}

func (d *dispatcher) sizeAware(estimatedSize int64) int {
	heavy := make([]*workerStats, 0)
	light := make([]*workerStats, 0)
	for _, w := range d.workers {
		if w.heavy {
			heavy = append(heavy, w)
		} else {
			light = append(light, w)
		}
	}
	if estimatedSize > heavyFileThreshold && len(heavy) > 0 {
		return d.leastLoaded(heavy)
	}
	if len(light) > 0 {
		return d.leastLoaded(light)
	}
	return d.leastLoaded(d.workers)
}

// begin marks worker idx as having picked up a task.
func (d *dispatcher) begin(idx int) {
	atomic.AddInt64(&d.workers[idx].pending, 1)
}

// finish marks worker idx as having completed a task after duration nanos.
func (d *dispatcher) finish(idx int, nanos int64) {
	atomic.AddInt64(&d.workers[idx].pending, -1)
	atomic.AddInt64(&d.workers[idx].totalNanos, nanos)
	atomic.AddInt64(&d.workers[idx].taskCount, 1)
}
