package indexer

import (
	"fmt"
	"sync"

	"github.com/hyperjump/codesight/internal/models"
)

// DependencyTracker releases a task only once every task it depends on has
// reached a terminal state, and rejects submissions that would introduce a
// cycle.
type DependencyTracker struct {
	mu        sync.Mutex
	dependsOn map[string][]string // taskID -> IDs it waits on
	done      map[string]bool
}

// NewDependencyTracker creates an empty tracker.
func NewDependencyTracker() *DependencyTracker {
	return &DependencyTracker{
		dependsOn: make(map[string][]string),
		done:      make(map[string]bool),
	}
}

// Submit registers task's dependency edges. It returns an error, admitting
// nothing, if adding task would create a cycle.
func (d *DependencyTracker) Submit(task *models.IndexingTask) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	trial := make(map[string][]string, len(d.dependsOn)+1)
	for k, v := range d.dependsOn {
		trial[k] = v
	}
	trial[task.ID] = task.DependsOn

	if cyclic(trial, task.ID) {
		return fmt.Errorf("task %s: dependency cycle detected", task.ID)
	}

	d.dependsOn[task.ID] = task.DependsOn
	return nil
}

// cyclic reports whether a depth-first walk from start revisits a node
// still on the current path.
func cyclic(edges map[string][]string, start string) bool {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int)

	var visit func(string) bool
	visit = func(node string) bool {
		switch state[node] {
		case visiting:
			return true
		case visited:
			return false
		}
		state[node] = visiting
		for _, dep := range edges[node] {
			if visit(dep) {
				return true
			}
		}
		state[node] = visited
		return false
	}
	return visit(start)
}

// Ready reports whether every dependency of taskID has completed.
func (d *DependencyTracker) Ready(taskID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, dep := range d.dependsOn[taskID] {
		if !d.done[dep] {
			return false
		}
	}
	return true
}

// MarkDone records taskID as having reached a terminal state.
func (d *DependencyTracker) MarkDone(taskID string) {
	d.mu.Lock()
	d.done[taskID] = true
	d.mu.Unlock()
}
