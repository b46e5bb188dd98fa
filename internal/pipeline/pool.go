package pipeline

import (
	"fmt"
	"sync"
)

// Pool is a fixed arena of pre-allocated buffers handed out through a free list
// of indices. The number of buffers never changes after NewPool.
type Pool struct {
	buffers []Buffer
	free    []int  // stack of idle indices
	idle    []bool // idle[i] reports whether buffers[i] sits in free
	mu      sync.Mutex
}

// NewPool allocates size buffers of the given shape.
func NewPool(size int, shape Shape) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", size)
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		buffers: make([]Buffer, size),
		free:    make([]int, size),
		idle:    make([]bool, size),
	}

	// One backing allocation for every payload keeps the arena contiguous.
	payload := shape.Size()
	arena := make([]byte, size*payload)
	for i := range p.buffers {
		p.buffers[i] = Buffer{
			Data:  arena[i*payload : (i+1)*payload : (i+1)*payload],
			Shape: shape,
			index: i,
			owner: p,
		}
		// Hand out low indices first.
		p.free[i] = size - 1 - i
		p.idle[i] = true
	}

	return p, nil
}

// Acquire returns an idle buffer, or false when none is available. It never
// blocks and never allocates.
func (p *Pool) Acquire() (*Buffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return nil, false
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]
	p.idle[idx] = false
	return &p.buffers[idx], true
}

// Release resets the buffer's stamp and returns it to the idle set. The payload
// is reused as-is. Safe to call from any goroutine.
func (p *Pool) Release(buf *Buffer) error {
	if buf == nil || buf.owner != p || buf.index < 0 || buf.index >= len(p.buffers) || &p.buffers[buf.index] != buf {
		return ErrForeignBuffer
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.idle[buf.index] {
		return ErrDoubleRelease
	}
	buf.Stamp = 0
	buf.Silent = false
	p.idle[buf.index] = true
	p.free = append(p.free, buf.index)
	return nil
}

// Cap returns the number of buffers the pool was built with.
func (p *Pool) Cap() int {
	return len(p.buffers)
}

// Idle returns the number of buffers currently in the idle set.
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// InUse returns the number of buffers currently outside the idle set.
func (p *Pool) InUse() int {
	return p.Cap() - p.Idle()
}
