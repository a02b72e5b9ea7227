package orchestrator

import (
	"maps"
	"sync"
	"time"
)

// MaxHistory bounds the in-memory history list. A configured limit can only lower it.
const MaxHistory = 50

// DefaultHistoryLimit is the page size callers use when the request names no limit.
const DefaultHistoryLimit = 10

// tracker holds the active table and the bounded history list.
type tracker struct {
	mu      sync.Mutex
	active  map[string]*ActiveDeployment
	history []HistoryEntry
	max     int
}

func newTracker() *tracker {
	return &tracker{active: make(map[string]*ActiveDeployment), max: MaxHistory}
}

func (t *tracker) setMax(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 || n > MaxHistory {
		n = MaxHistory
	}
	t.max = n
	if len(t.history) > n {
		t.history = append([]HistoryEntry(nil), t.history[len(t.history)-n:]...)
	}
}

func (t *tracker) start(id, project string, startedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[id] = &ActiveDeployment{
		ProjectName: project,
		StartedAt:   startedAt,
		Status:      StatusInProgress,
	}
}

func (t *tracker) finish(id, status string, completedAt time.Time, entry HistoryEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a, ok := t.active[id]; ok {
		a.Status = status
		a.CompletedAt = &completedAt
	}

	t.history = append(t.history, entry)
	if len(t.history) > t.max {
		t.history = append([]HistoryEntry(nil), t.history[len(t.history)-t.max:]...)
	}
}

func (t *tracker) get(id string) (ActiveDeployment, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.active[id]
	if !ok {
		return ActiveDeployment{}, false
	}
	return *a, true
}

func (t *tracker) snapshot() map[string]ActiveDeployment {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]ActiveDeployment, len(t.active))
	for id, a := range t.active {
		out[id] = *a
	}
	return out
}

// recent returns the last limit entries in insertion order. limit <= 0 returns all.
func (t *tracker) recent(limit int) []HistoryEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := 0
	if limit > 0 && limit < len(t.history) {
		start = len(t.history) - limit
	}
	return append([]HistoryEntry(nil), t.history[start:]...)
}

func (t *tracker) cleanup() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	before := len(t.active)
	maps.DeleteFunc(t.active, func(_ string, a *ActiveDeployment) bool {
		return isTerminal(a.Status)
	})
	return before - len(t.active)
}
