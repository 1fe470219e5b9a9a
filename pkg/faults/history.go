package faults

import (
	"sync"
	"time"
)

// DefaultHistoryCapacity bounds the rolling diagnostic history.
const DefaultHistoryCapacity = 1000

// History is a bounded ring buffer of categorized errors kept for
// diagnostics. When full, the oldest entry is overwritten.
type History struct {
	mu       sync.Mutex
	entries  []*CategorizedError
	next     int
	size     int
	capacity int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}

	return &History{
		entries:  make([]*CategorizedError, capacity),
		capacity: capacity,
	}
}

// Record appends an error, evicting the oldest when at capacity.
func (h *History) Record(err *CategorizedError) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.next] = err
	h.next = (h.next + 1) % h.capacity

	if h.size < h.capacity {
		h.size++
	}
}

// Recent returns up to n errors, newest first.
func (h *History) Recent(n int) []*CategorizedError {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > h.size {
		n = h.size
	}

	recent := make([]*CategorizedError, 0, n)

	for i := 1; i <= n; i++ {
		idx := (h.next - i + h.capacity) % h.capacity
		recent = append(recent, h.entries[idx])
	}

	return recent
}

// Len returns the number of recorded errors currently retained.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.size
}

// Acknowledge stamps the error with the given id as seen by an operator.
func (h *History) Acknowledge(id string) bool {
	return h.stamp(id, func(e *CategorizedError, now time.Time) { e.AcknowledgedAt = &now })
}

// Resolve stamps the error with the given id as resolved.
func (h *History) Resolve(id string) bool {
	return h.stamp(id, func(e *CategorizedError, now time.Time) { e.ResolvedAt = &now })
}

func (h *History) stamp(id string, apply func(*CategorizedError, time.Time)) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, entry := range h.entries {
		if entry != nil && entry.ID == id {
			apply(entry, time.Now())

			return true
		}
	}

	return false
}
