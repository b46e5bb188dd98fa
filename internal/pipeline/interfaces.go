package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAcquireTimeout is returned by a Source when no frame arrived within the timeout.
	// The capture loop treats it as a miss for the current tick, not a failure.
	ErrAcquireTimeout = errors.New("acquire timed out")

	// ErrPoolExhausted is reported in drop diagnostics when no idle buffer was available.
	ErrPoolExhausted = errors.New("buffer pool exhausted")

	// ErrDoubleRelease is returned when a buffer that is already idle is released again.
	ErrDoubleRelease = errors.New("buffer released twice")

	// ErrForeignBuffer is returned when releasing a buffer the pool did not allocate.
	ErrForeignBuffer = errors.New("buffer does not belong to this pool")

	// ErrQueueClosed is returned by Push after the queue has been closed.
	ErrQueueClosed = errors.New("queue closed")

	// ErrQueueFull is returned by Push when the queue is at capacity.
	// It cannot happen while the queue is sized to the pool.
	ErrQueueFull = errors.New("queue full")
)

// RawFrame is an unconverted sample block as produced by a capture source.
// Release hands it back to the source and must be called exactly once.
type RawFrame interface {
	Release()
}

// Source produces raw frames. Acquire must not block longer than timeout and
// returns ErrAcquireTimeout when nothing arrived in time.
type Source interface {
	Acquire(ctx context.Context, timeout time.Duration) (RawFrame, error)
}

// Converter writes a raw frame into a pooled buffer. A failed conversion must
// leave nothing the pipeline has to inspect; the buffer is returned unused.
type Converter interface {
	Convert(raw RawFrame, dst *Buffer) error
}

// Sink consumes finished buffers strictly in submission order.
// Submit must not retain buf after returning.
type Sink interface {
	Submit(buf *Buffer, stamp int64) error
	Flush() error
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(raw RawFrame, dst *Buffer) error

// Convert implements Converter.
func (f ConverterFunc) Convert(raw RawFrame, dst *Buffer) error {
	return f(raw, dst)
}

// SinkError wraps a sink failure together with the stamp being submitted.
type SinkError struct {
	Stamp int64
	Op    string // "submit" or "flush"
	Err   error
}

func (e *SinkError) Error() string {
	if e.Op == "flush" {
		return fmt.Sprintf("sink flush: %v", e.Err)
	}
	return fmt.Sprintf("sink submit stamp %d: %v", e.Stamp, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
