// Package metrics provides Prometheus metrics for recording sessions and the encoder.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/framerec/internal/pipeline"
)

const namespace = "framerec"

var (
	pipelineTicks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "ticks_total",
		Help:      "Capture ticks taken",
	}, []string{"session"})

	pipelineEnqueued = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "enqueued_total",
		Help:      "Buffers handed from capture to encode",
	}, []string{"session"})

	pipelineSubmitted = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "submitted_total",
		Help:      "Buffers accepted by the sink",
	}, []string{"session"})

	pipelineSkipped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "skipped_slots_total",
		Help:      "Timeline slots given up because capture fell behind",
	}, []string{"session"})

	pipelineDropped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "dropped_total",
		Help:      "Ticks that produced no buffer, by reason",
	}, []string{"session", "reason"})

	pipelineQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "queue_depth",
		Help:      "Entries waiting for the encode loop",
	}, []string{"session"})

	pipelineIdleBuffers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "idle_buffers",
		Help:      "Buffers available in the pool",
	}, []string{"session"})

	// Local cache for API reads.
	sessionCache   = make(map[string]pipeline.Stats)
	sessionCacheMu sync.RWMutex
)

// SetSessionStats publishes a pipeline stats snapshot for a session.
func SetSessionStats(session string, s pipeline.Stats) {
	pipelineTicks.WithLabelValues(session).Set(float64(s.Ticks))
	pipelineEnqueued.WithLabelValues(session).Set(float64(s.Enqueued))
	pipelineSubmitted.WithLabelValues(session).Set(float64(s.Submitted))
	pipelineSkipped.WithLabelValues(session).Set(float64(s.Skipped))
	for _, reason := range pipeline.DropReasons {
		pipelineDropped.WithLabelValues(session, string(reason)).Set(float64(s.Dropped[reason]))
	}
	pipelineQueueDepth.WithLabelValues(session).Set(float64(s.QueueDepth))
	pipelineIdleBuffers.WithLabelValues(session).Set(float64(s.IdleBuffers))

	dropped := make(map[pipeline.DropReason]uint64, len(s.Dropped))
	for k, v := range s.Dropped {
		dropped[k] = v
	}
	s.Dropped = dropped

	sessionCacheMu.Lock()
	sessionCache[session] = s
	sessionCacheMu.Unlock()
}

// DeleteSessionMetrics removes all pipeline series for a session.
func DeleteSessionMetrics(session string) {
	pipelineTicks.DeleteLabelValues(session)
	pipelineEnqueued.DeleteLabelValues(session)
	pipelineSubmitted.DeleteLabelValues(session)
	pipelineSkipped.DeleteLabelValues(session)
	pipelineDropped.DeletePartialMatch(prometheus.Labels{"session": session})
	pipelineQueueDepth.DeleteLabelValues(session)
	pipelineIdleBuffers.DeleteLabelValues(session)

	sessionCacheMu.Lock()
	delete(sessionCache, session)
	sessionCacheMu.Unlock()
}

// GetSessionStats returns the last snapshot recorded for a session.
func GetSessionStats(session string) (pipeline.Stats, bool) {
	sessionCacheMu.RLock()
	defer sessionCacheMu.RUnlock()
	s, ok := sessionCache[session]
	return s, ok
}
