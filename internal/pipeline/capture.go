package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/smazurov/framerec/internal/logging"
)

// CaptureState is the capture loop's position in its tick cycle.
type CaptureState int32

// Capture loop states.
const (
	CaptureIdle CaptureState = iota
	CaptureWaiting
	CaptureAcquiring
	CaptureConverting
	CaptureEnqueuing
	CaptureStopped
)

func (s CaptureState) String() string {
	switch s {
	case CaptureIdle:
		return "idle"
	case CaptureWaiting:
		return "waiting"
	case CaptureAcquiring:
		return "acquiring"
	case CaptureConverting:
		return "converting"
	case CaptureEnqueuing:
		return "enqueuing"
	case CaptureStopped:
		return "stopped"
	}
	return "unknown"
}

// DropHandler observes ticks that produced no queued buffer. total is the
// running count for that reason. Called on the capture goroutine; keep it cheap.
type DropHandler func(reason DropReason, stamp int64, total uint64, err error)

// captureLoop is the producer side: pace, acquire, convert, stamp, push.
type captureLoop struct {
	pacer     *Pacer
	source    Source
	converter Converter
	pool      *Pool
	queue     *Queue
	stop      *StopToken
	timeout   time.Duration
	counters  *counters
	onDrop    DropHandler
	logger    logging.Logger
	state     atomic.Int32
}

func (c *captureLoop) setState(s CaptureState) {
	c.state.Store(int32(s))
}

// run ticks until the stop token is observed, then closes the queue so the
// encode loop sees end-of-stream once it has drained.
func (c *captureLoop) run(ctx context.Context) {
	defer c.queue.Close()
	defer c.setState(CaptureStopped)

	c.logger.Info("Capture loop started", "interval", c.pacer.Interval(), "timeout", c.timeout)

	for {
		if c.stop.Stopped() || ctx.Err() != nil {
			break
		}

		c.setState(CaptureWaiting)
		tick, ok := c.pacer.Next(c.stop.Done())
		if !ok || c.stop.Stopped() {
			break
		}

		c.counters.ticks.Add(1)
		if tick.Skipped > 0 {
			c.counters.skipped.Add(uint64(tick.Skipped))
			c.logger.Debug("Capture fell behind, skipping slots", "skipped", tick.Skipped, "stamp", tick.Stamp)
		}

		c.tick(ctx, tick)
	}

	c.logger.Info("Capture loop stopped", "last_stamp", c.counters.lastStamp.Load())
}

func (c *captureLoop) tick(ctx context.Context, tick Tick) {
	c.setState(CaptureAcquiring)
	raw, err := c.source.Acquire(ctx, c.timeout)
	if err != nil {
		if errors.Is(err, ErrAcquireTimeout) {
			c.dropped(DropCaptureMiss, tick.Stamp, nil)
			return
		}
		c.dropped(DropCaptureError, tick.Stamp, err)
		return
	}

	buf, ok := c.pool.Acquire()
	if !ok {
		raw.Release()
		c.dropped(DropPoolExhausted, tick.Stamp, ErrPoolExhausted)
		return
	}

	c.setState(CaptureConverting)
	err = c.converter.Convert(raw, buf)
	raw.Release()
	if err != nil {
		c.release(buf)
		c.dropped(DropConvertFailed, tick.Stamp, err)
		return
	}

	c.setState(CaptureEnqueuing)
	buf.Stamp = tick.Stamp
	if err := c.queue.Push(Entry{Buffer: buf, Stamp: tick.Stamp}); err != nil {
		// Only reachable if the queue was sized below the pool.
		c.logger.Error("Failed to enqueue buffer", "stamp", tick.Stamp, "error", err)
		c.release(buf)
		return
	}

	c.counters.enqueued.Add(1)
	c.counters.lastStamp.Store(tick.Stamp)
}

func (c *captureLoop) release(buf *Buffer) {
	if err := c.pool.Release(buf); err != nil {
		c.logger.Error("Failed to return buffer to pool", "error", err)
	}
}

func (c *captureLoop) dropped(reason DropReason, stamp int64, err error) {
	total := c.counters.drop(reason)

	switch reason {
	case DropPoolExhausted:
		c.logger.Warn("Pool empty, skipping frame", "stamp", stamp, "total", total)
	case DropCaptureError, DropConvertFailed:
		c.logger.Warn("Dropped frame", "reason", string(reason), "stamp", stamp, "error", err)
	default:
		c.logger.Debug("Dropped frame", "reason", string(reason), "stamp", stamp)
	}

	if c.onDrop != nil {
		c.onDrop(reason, stamp, total, err)
	}
}
