package exporters

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/framerec/internal/events"
	"github.com/smazurov/framerec/internal/logging"
	"github.com/smazurov/framerec/internal/metrics"
	"github.com/smazurov/framerec/internal/pipeline"
)

// DefaultReportInterval is how often a Reporter samples the pipeline.
const DefaultReportInterval = 2 * time.Second

// StatsSource is satisfied by *pipeline.Pipeline.
type StatsSource interface {
	Stats() pipeline.Stats
}

// EventPublisher is the subset of the event bus a Reporter needs.
type EventPublisher interface {
	Publish(ev events.Event)
}

// Reporter periodically samples a session's pipeline counters into the
// Prometheus gauges and publishes them as SessionStatsEvent.
type Reporter struct {
	session  string
	source   StatsSource
	bus      EventPublisher
	interval time.Duration
	logger   logging.Logger

	started  atomic.Bool
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewReporter creates a reporter. A non-positive interval selects
// DefaultReportInterval.
func NewReporter(session string, source StatsSource, bus EventPublisher, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	return &Reporter{
		session:  session,
		source:   source,
		bus:      bus,
		interval: interval,
		logger:   logging.GetLogger("metrics").With("session", session),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins sampling until ctx is cancelled or Stop is called.
func (r *Reporter) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.run(ctx)
}

// Stop takes one final sample and waits for the reporter to exit.
// The session's series stay in place until DeleteSessionMetrics.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.started.Load() {
		<-r.done
	}
}

func (r *Reporter) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Debug("Stats reporter started", "interval", r.interval)
	r.report()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			r.report()
			return
		case <-ticker.C:
			r.report()
		}
	}
}

func (r *Reporter) report() {
	s := r.source.Stats()
	metrics.SetSessionStats(r.session, s)

	if r.bus == nil {
		return
	}
	dropped := make(map[string]uint64, len(s.Dropped))
	for reason, n := range s.Dropped {
		dropped[string(reason)] = n
	}
	r.bus.Publish(events.SessionStatsEvent{
		Session:     r.session,
		Ticks:       s.Ticks,
		Enqueued:    s.Enqueued,
		Submitted:   s.Submitted,
		Skipped:     s.Skipped,
		Dropped:     dropped,
		QueueDepth:  s.QueueDepth,
		IdleBuffers: s.IdleBuffers,
		LastStamp:   s.LastStamp,
	})
}
