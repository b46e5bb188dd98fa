package pipeline

import (
	"context"
	"sync"
)

// Entry is one buffer in flight between the capture and encode loops.
type Entry struct {
	Buffer *Buffer
	Stamp  int64
}

// Queue is a single-producer, single-consumer FIFO backed by a buffered channel.
// Closing it marks end-of-stream: Pop keeps returning entries until the channel
// is drained and then reports false.
type Queue struct {
	ch     chan Entry
	mu     sync.Mutex // guards closed against a concurrent Push
	closed bool
}

// NewQueue creates a queue holding up to capacity entries. Size it to the pool
// so that Push can never find it full.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{ch: make(chan Entry, capacity)}
}

// Push appends an entry without blocking.
func (q *Queue) Push(e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pop blocks until an entry is available or the queue is closed and empty.
// The second result is false at end-of-stream or when ctx is cancelled.
func (q *Queue) Pop(ctx context.Context) (Entry, bool) {
	select {
	case e, ok := <-q.ch:
		return e, ok
	case <-ctx.Done():
		return Entry{}, false
	}
}

// Close marks end-of-stream. It is idempotent and safe from any goroutine.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Drain hands every remaining entry to fn. Only call it once the consumer has
// stopped popping and the queue is closed.
func (q *Queue) Drain(fn func(Entry)) int {
	n := 0
	for {
		select {
		case e, ok := <-q.ch:
			if !ok {
				return n
			}
			fn(e)
			n++
		default:
			return n
		}
	}
}

// IsEmpty reports whether the queue currently holds no entries.
func (q *Queue) IsEmpty() bool {
	return len(q.ch) == 0
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
