package tracker

import (
	"sort"
	"sync"

	"github.com/trevnoctilla/toolprobe/pkg/probe"
)

// InMemoryRunTracker implements RunTracker using an in-memory map.
type InMemoryRunTracker struct {
	mu     sync.RWMutex
	latest map[string]probe.TestRun // toolID -> run
}

// NewInMemoryRunTracker creates a new InMemoryRunTracker.
func NewInMemoryRunTracker() *InMemoryRunTracker {
	return &InMemoryRunTracker{latest: make(map[string]probe.TestRun)}
}

// Update replaces the stored snapshot when run belongs to the same run or
// started later. Snapshots of an older run are dropped.
func (t *InMemoryRunTracker) Update(run probe.TestRun) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.latest[run.ToolID]; ok && cur.ID != run.ID && run.StartedAt.Before(cur.StartedAt) {
		return false
	}
	t.latest[run.ToolID] = run.Clone()
	return true
}

// Latest returns a copy of the tool's most recent snapshot.
func (t *InMemoryRunTracker) Latest(toolID string) (probe.TestRun, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.latest[toolID]
	if !ok {
		return probe.TestRun{}, false
	}
	return run.Clone(), true
}

// All returns copies of every tool's latest snapshot, ordered by tool ID.
func (t *InMemoryRunTracker) All() []probe.TestRun {
	t.mu.RLock()
	runs := make([]probe.TestRun, 0, len(t.latest))
	for _, r := range t.latest {
		runs = append(runs, r.Clone())
	}
	t.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].ToolID < runs[j].ToolID })
	return runs
}

// Remove deletes the tracking information for the given tool.
func (t *InMemoryRunTracker) Remove(toolID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.latest, toolID)
}
