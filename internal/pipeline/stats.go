package pipeline

import "sync/atomic"

// DropReason classifies a tick that produced no queued buffer.
type DropReason string

// Drop reasons.
const (
	DropCaptureMiss   DropReason = "capture_miss"   // source timed out
	DropCaptureError  DropReason = "capture_error"  // source reported a transient error
	DropPoolExhausted DropReason = "pool_exhausted" // no idle buffer
	DropConvertFailed DropReason = "convert_failed" // converter rejected the frame
)

// DropReasons lists every reason in a stable order.
var DropReasons = []DropReason{DropCaptureMiss, DropCaptureError, DropPoolExhausted, DropConvertFailed}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Ticks       uint64                `json:"ticks"`
	Enqueued    uint64                `json:"enqueued"`
	Skipped     uint64                `json:"skipped"`
	Dropped     map[DropReason]uint64 `json:"dropped"`
	Submitted   uint64                `json:"submitted"`
	LastStamp   int64                 `json:"last_stamp"`
	QueueDepth  int                   `json:"queue_depth"`
	IdleBuffers int                   `json:"idle_buffers"`
	PoolSize    int                   `json:"pool_size"`
}

// TotalDropped sums drops across all reasons.
func (s Stats) TotalDropped() uint64 {
	var total uint64
	for _, n := range s.Dropped {
		total += n
	}
	return total
}

type counters struct {
	ticks     atomic.Uint64
	enqueued  atomic.Uint64
	skipped   atomic.Uint64
	submitted atomic.Uint64
	lastStamp atomic.Int64

	captureMiss   atomic.Uint64
	captureError  atomic.Uint64
	poolExhausted atomic.Uint64
	convertFailed atomic.Uint64
}

func (c *counters) drop(reason DropReason) uint64 {
	switch reason {
	case DropCaptureMiss:
		return c.captureMiss.Add(1)
	case DropCaptureError:
		return c.captureError.Add(1)
	case DropPoolExhausted:
		return c.poolExhausted.Add(1)
	case DropConvertFailed:
		return c.convertFailed.Add(1)
	}
	return 0
}

func (c *counters) snapshot() Stats {
	return Stats{
		Ticks:     c.ticks.Load(),
		Enqueued:  c.enqueued.Load(),
		Skipped:   c.skipped.Load(),
		Submitted: c.submitted.Load(),
		LastStamp: c.lastStamp.Load(),
		Dropped: map[DropReason]uint64{
			DropCaptureMiss:   c.captureMiss.Load(),
			DropCaptureError:  c.captureError.Load(),
			DropPoolExhausted: c.poolExhausted.Load(),
			DropConvertFailed: c.convertFailed.Load(),
		},
	}
}
