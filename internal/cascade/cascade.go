package cascade

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/task"
)

// Sink mirrors failure edges somewhere outside the process.
type Sink interface {
	RecordFailure(ctx context.Context, failedID string, dependents []string) error
}

// Tracker remembers failed prerequisite tasks and the tasks they invalidate.
type Tracker struct {
	failed map[string][]string
	order  []string
	sink   Sink
	mu     sync.RWMutex
	logger *zap.Logger
}

// New creates a tracker. sink may be nil.
func New(sink Sink, logger *zap.Logger) *Tracker {
	return &Tracker{failed: make(map[string][]string), sink: sink, logger: logger}
}

// Record stores failedID -> dependents parsed from preTaskFor and returns
// the dependents. Nothing is stored when the list is empty.
func (t *Tracker) Record(ctx context.Context, failedID, preTaskFor string) []string {
	deps := task.SplitIDs(preTaskFor)
	if len(deps) == 0 {
		return nil
	}

	t.mu.Lock()
	if _, ok := t.failed[failedID]; !ok {
		t.order = append(t.order, failedID)
	}
	t.failed[failedID] = deps
	t.mu.Unlock()

	t.logger.Info("prerequisite failed",
		zap.String("task", failedID), zap.Strings("affects", deps))
	if t.sink != nil {
		if err := t.sink.RecordFailure(ctx, failedID, deps); err != nil {
			t.logger.Warn("mirror failure edge", zap.String("task", failedID), zap.Error(err))
		}
	}
	return slices.Clone(deps)
}

// AffectedBy returns the first recorded failed task that lists taskID as a
// dependent.
func (t *Tracker) AffectedBy(taskID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range t.order {
		if slices.Contains(t.failed[id], taskID) {
			return id, true
		}
	}
	return "", false
}

// Len is the number of recorded failed tasks.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Snapshot returns a copy of the failure map.
func (t *Tracker) Snapshot() map[string][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]string, len(t.failed))
	for k, v := range t.failed {
		out[k] = slices.Clone(v)
	}
	return out
}

// Order returns failed task ids in recording order.
func (t *Tracker) Order() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.order)
}

// Restore replaces the failure map. Ids listed in order keep that lookup
// order; keys missing from it follow in sorted order.
func (t *Tracker) Restore(m map[string][]string, order []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed = make(map[string][]string, len(m))
	t.order = nil
	for _, id := range order {
		deps, ok := m[id]
		if _, seen := t.failed[id]; ok && !seen {
			t.failed[id] = slices.Clone(deps)
			t.order = append(t.order, id)
		}
	}
	var rest []string
	for k, v := range m {
		if _, ok := t.failed[k]; ok {
			continue
		}
		t.failed[k] = slices.Clone(v)
		rest = append(rest, k)
	}
	slices.Sort(rest)
	t.order = append(t.order, rest...)
}
