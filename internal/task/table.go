package task

import "sync"

// Table is the process-wide, concurrent task-key -> Task map. Apart
// from Replace, all mutation is conditional (insert-if-absent,
// remove-if-still-mapped) so
// that "exactly one Task per task key at any time" holds without a
// coarse lock around every lookup.
type Table struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewTable creates an empty task table.
func NewTable() *Table {
	return &Table{tasks: make(map[string]*Task)}
}

// Get returns the Task at key, if any.
func (tb *Table) Get(key string) (*Task, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	t, ok := tb.tasks[key]
	return t, ok
}

// InsertIfAbsent inserts t at key only if no task is currently
// present, returning the winning Task (either t, or whatever was
// already there) and whether t was the one inserted.
func (tb *Table) InsertIfAbsent(key string, t *Task) (winner *Task, inserted bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if existing, ok := tb.tasks[key]; ok {
		return existing, false
	}
	tb.tasks[key] = t
	return t, true
}

// Replace unconditionally installs t at key, overwriting any Task
// already mapped there.
func (tb *Table) Replace(key string, t *Task) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tasks[key] = t
}

// Remove deletes key from the table if it is still mapped to t (so a
// stale removal racing a Replace can't evict the newer Task).
func (tb *Table) Remove(key string, t *Task) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.tasks[key] == t {
		delete(tb.tasks, key)
	}
}

// Len returns the number of tasks currently tracked.
func (tb *Table) Len() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return len(tb.tasks)
}

// Each calls fn for a stable snapshot of the table's current tasks.
func (tb *Table) Each(fn func(key string, t *Task)) {
	tb.mu.RLock()
	snapshot := make(map[string]*Task, len(tb.tasks))
	for k, v := range tb.tasks {
		snapshot[k] = v
	}
	tb.mu.RUnlock()

	for k, v := range snapshot {
		fn(k, v)
	}
}
