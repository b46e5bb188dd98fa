package pipeline

import (
	"fmt"
	"time"
)

// Tick is one scheduling decision made by the Pacer.
type Tick struct {
	Stamp     int64     // logical position in the output timeline
	Skipped   int64     // slots given up before this tick because the loop fell behind
	Scheduled time.Time // instant the tick was scheduled for
}

// Pacer keeps the capture loop on a fixed interval. When the loop falls more
// than one interval behind it skips ahead instead of trying to catch up, so
// stamps track wall-clock time and missed slots show up as gaps.
type Pacer struct {
	interval time.Duration
	next     time.Time
	counter  int64
	started  bool

	now   func() time.Time
	sleep func(d time.Duration, stop <-chan struct{}) bool
}

// PacerOption configures a Pacer.
type PacerOption func(*Pacer)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) PacerOption {
	return func(p *Pacer) {
		p.now = now
	}
}

// WithSleeper overrides how the pacer waits. The function returns false if it
// was interrupted by stop.
func WithSleeper(sleep func(d time.Duration, stop <-chan struct{}) bool) PacerOption {
	return func(p *Pacer) {
		p.sleep = sleep
	}
}

// NewPacer creates a pacer ticking every interval.
func NewPacer(interval time.Duration, opts ...PacerOption) (*Pacer, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("pacing interval must be positive, got %v", interval)
	}
	p := &Pacer{
		interval: interval,
		now:      time.Now,
		sleep:    sleepUntilStopped,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// IntervalForRate returns the tick interval for a target rate in ticks per second.
// The interval is truncated to whole milliseconds.
func IntervalForRate(rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(1000/rate) * time.Millisecond
}

// Interval returns the configured tick interval.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// NextInstant returns the instant the following tick is scheduled for.
func (p *Pacer) NextInstant() time.Time {
	return p.next
}

// Next waits for the next scheduled instant and returns the tick. It returns
// false only when stop fired while waiting.
func (p *Pacer) Next(stop <-chan struct{}) (Tick, bool) {
	if !p.started {
		p.next = p.now()
		p.started = true
	}

	now := p.now()
	scheduled := p.next
	var skipped int64

	if !now.Before(p.next.Add(p.interval)) {
		// A whole interval or more behind: give up the missed slots so the
		// stamp stays elapsed/interval.
		skipped = int64(now.Sub(p.next) / p.interval)
		p.counter += skipped
		scheduled = p.next.Add(time.Duration(skipped) * p.interval)
		p.next = p.next.Add(time.Duration(skipped+1) * p.interval)
	} else {
		if wait := p.next.Sub(now); wait > 0 {
			if !p.sleep(wait, stop) {
				return Tick{}, false
			}
		}
		p.next = p.next.Add(p.interval)
	}

	stamp := p.counter
	p.counter++
	return Tick{Stamp: stamp, Skipped: skipped, Scheduled: scheduled}, true
}

func sleepUntilStopped(d time.Duration, stop <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}
