package detection

import "sync"

// DefaultHistoryCapacity is the number of results kept for display.
const DefaultHistoryCapacity = 10

// History keeps the most recent results, newest first. It is safe for concurrent use.
type History struct {
	// capacity is the maximum number of results kept.
	capacity int

	// mu protects entries.
	mu sync.RWMutex
	// entries holds results, newest first.
	entries []Result
}

// NewHistory creates a history bounded to capacity results.
// Non-positive capacities fall back to DefaultHistoryCapacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}

	return &History{
		capacity: capacity,
		entries:  make([]Result, 0, capacity),
	}
}

// Add records a result as the newest entry, evicting the oldest when full.
func (h *History) Add(result Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) == h.capacity {
		h.entries = h.entries[:h.capacity-1]
	}

	h.entries = append(h.entries, Result{})
	copy(h.entries[1:], h.entries)
	h.entries[0] = result
}

// Restore replaces the content with results given newest first, keeping at most capacity.
func (h *History) Restore(results []Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = h.entries[:0]
	h.entries = append(h.entries, results[:min(len(results), h.capacity)]...)
}

// List returns a copy of the results, newest first.
func (h *History) List() []Result {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return append([]Result(nil), h.entries...)
}

// Latest returns the newest result, if any.
func (h *History) Latest() (Result, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.entries) == 0 {
		return Result{}, false
	}

	return h.entries[0], true
}

// Len returns the number of stored results.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.entries)
}

// Capacity returns the maximum number of stored results.
func (h *History) Capacity() int {
	return h.capacity
}
