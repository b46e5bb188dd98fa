package events

import (
	"sync"
	"time"

	"github.com/smazurov/framerec/internal/pipeline"
)

// DropThrottle turns per-tick drop callbacks into at most one
// FrameDroppedEvent per reason per window. A stalled display at 30 fps would
// otherwise flood every SSE client.
type DropThrottle struct {
	bus     *Bus
	session string
	window  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	pending map[pipeline.DropReason]*pendingDrop
}

type pendingDrop struct {
	count    uint64
	total    uint64
	stamp    int64
	err      error
	lastSent time.Time
}

// NewDropThrottle creates a throttle publishing to bus.
func NewDropThrottle(bus *Bus, session string, window time.Duration) *DropThrottle {
	return &DropThrottle{
		bus:     bus,
		session: session,
		window:  window,
		now:     time.Now,
		pending: make(map[pipeline.DropReason]*pendingDrop),
	}
}

// Handle has the pipeline.DropHandler signature.
func (d *DropThrottle) Handle(reason pipeline.DropReason, stamp int64, total uint64, err error) {
	d.mu.Lock()
	p, ok := d.pending[reason]
	if !ok {
		p = &pendingDrop{}
		d.pending[reason] = p
	}
	p.count++
	p.total = total
	p.stamp = stamp
	p.err = err

	now := d.now()
	if !p.lastSent.IsZero() && now.Sub(p.lastSent) < d.window {
		d.mu.Unlock()
		return
	}
	ev := d.take(reason, p, now)
	d.mu.Unlock()

	d.bus.Publish(ev)
}

// Flush publishes whatever is still pending, e.g. when the session ends.
func (d *DropThrottle) Flush() {
	d.mu.Lock()
	now := d.now()
	var out []FrameDroppedEvent
	for _, reason := range pipeline.DropReasons {
		if p, ok := d.pending[reason]; ok && p.count > 0 {
			out = append(out, d.take(reason, p, now))
		}
	}
	d.mu.Unlock()

	for _, ev := range out {
		d.bus.Publish(ev)
	}
}

// take must be called with mu held.
func (d *DropThrottle) take(reason pipeline.DropReason, p *pendingDrop, now time.Time) FrameDroppedEvent {
	ev := FrameDroppedEvent{
		Session:   d.session,
		Reason:    string(reason),
		Stamp:     p.stamp,
		Count:     p.count,
		Total:     p.total,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if p.err != nil {
		ev.Error = p.err.Error()
	}
	p.count = 0
	p.lastSent = now
	return ev
}
