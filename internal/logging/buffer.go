package logging

import (
	"sync"
	"time"
)

// LogEntry is one log line kept in memory for the logs API.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Session    string         `json:"session,omitempty"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent log entries. Entries get increasing
// sequence numbers so readers can resume where they stopped.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	head    int
	count   int
	seq     uint64
}

// NewRingBuffer creates a buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{entries: make([]LogEntry, size)}
}

// Write stores entry, replacing the oldest one when full, and returns the
// sequence number it was given.
func (rb *RingBuffer) Write(entry LogEntry) uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.seq++
	entry.Seq = rb.seq
	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % len(rb.entries)
	if rb.count < len(rb.entries) {
		rb.count++
	}
	return entry.Seq
}

// ReadAll returns all entries, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.ReadSince(0)
}

// ReadSince returns entries with a sequence number above seq, oldest first.
func (rb *RingBuffer) ReadSince(seq uint64) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	first := rb.seq - uint64(rb.count) + 1
	if seq >= rb.seq {
		return nil
	}
	skip := 0
	if seq >= first {
		skip = int(seq - first + 1)
	}

	n := rb.count - skip
	result := make([]LogEntry, n)
	start := (rb.head - rb.count + skip + len(rb.entries)) % len(rb.entries)
	for i := range n {
		result[i] = rb.entries[(start+i)%len(rb.entries)]
	}
	return result
}

// Tail returns up to n of the newest entries, oldest first.
func (rb *RingBuffer) Tail(n int) []LogEntry {
	rb.mu.RLock()
	last := rb.seq
	count := rb.count
	rb.mu.RUnlock()

	if n <= 0 || n >= count {
		return rb.ReadAll()
	}
	return rb.ReadSince(last - uint64(n))
}

// Count returns the number of entries held.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
