// Package recorder runs one recording session: a pipeline plus the stats
// reporter, throttled drop events and lifecycle events around it.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/framerec/internal/api/models"
	"github.com/smazurov/framerec/internal/events"
	"github.com/smazurov/framerec/internal/logging"
	"github.com/smazurov/framerec/internal/metrics"
	"github.com/smazurov/framerec/internal/metrics/exporters"
	"github.com/smazurov/framerec/internal/pipeline"
)

// DefaultDropWindow is how often drop events are published per reason.
const DefaultDropWindow = time.Second

// Config describes a session.
type Config struct {
	Name     string // session identifier, also the metrics label
	Kind     string // "video" or "audio"
	Output   string
	Pipeline pipeline.Config

	EventBus       *events.Bus // optional
	ReportInterval time.Duration
	DropWindow     time.Duration
}

// Session owns a pipeline for the duration of one recording.
type Session struct {
	cfg      Config
	pipe     *pipeline.Pipeline
	reporter *exporters.Reporter
	drops    *events.DropThrottle
	logger   logging.Logger

	mu        sync.Mutex
	startedAt time.Time
	waitOnce  sync.Once
	waitErr   error
}

// New builds the pipeline for a session. Nothing runs until Start.
func New(cfg Config, source pipeline.Source, converter pipeline.Converter, sink pipeline.Sink) (*Session, error) {
	if cfg.Name == "" {
		return nil, errors.New("session name is required")
	}
	if cfg.DropWindow <= 0 {
		cfg.DropWindow = DefaultDropWindow
	}

	s := &Session{
		cfg:    cfg,
		logger: logging.GetLogger("pipeline").With("session", cfg.Name),
	}

	opts := []pipeline.Option{pipeline.WithLogger(s.logger)}
	if cfg.EventBus != nil {
		s.drops = events.NewDropThrottle(cfg.EventBus, cfg.Name, cfg.DropWindow)
		opts = append(opts, pipeline.WithDropHandler(s.drops.Handle))
	}

	pipe, err := pipeline.New(cfg.Pipeline, source, converter, sink, opts...)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", cfg.Name, err)
	}
	s.pipe = pipe

	var publisher exporters.EventPublisher
	if cfg.EventBus != nil {
		publisher = cfg.EventBus
	}
	s.reporter = exporters.NewReporter(cfg.Name, pipe, publisher, cfg.ReportInterval)

	return s, nil
}

// Start launches the pipeline and the stats reporter.
func (s *Session) Start(ctx context.Context) error {
	if err := s.pipe.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.reporter.Start(ctx)
	s.logger.Info("Recording started", "kind", s.cfg.Kind, "output", s.cfg.Output)

	if s.cfg.EventBus != nil {
		s.cfg.EventBus.Publish(events.SessionStartedEvent{
			Session:   s.cfg.Name,
			Kind:      s.cfg.Kind,
			Output:    s.cfg.Output,
			Interval:  s.cfg.Pipeline.Interval.String(),
			PoolSize:  s.cfg.Pipeline.PoolSize,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
	return nil
}

// RequestStop asks the pipeline to finish. Safe from any goroutine.
func (s *Session) RequestStop() {
	s.pipe.RequestStop()
}

// Done is closed when both pipeline loops have exited.
func (s *Session) Done() <-chan struct{} {
	return s.pipe.Done()
}

// Wait joins the pipeline, takes a final stats sample and publishes the
// outcome. It returns the pipeline's error. Safe to call more than once.
func (s *Session) Wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.pipe.Join()
		s.reporter.Stop()
		if s.drops != nil {
			s.drops.Flush()
		}

		stats := s.pipe.Stats()
		if s.waitErr != nil {
			s.logger.Error("Recording failed", "error", s.waitErr)
		} else {
			s.logger.Info("Recording finished",
				"output", s.cfg.Output,
				"submitted", stats.Submitted,
				"dropped", stats.TotalDropped(),
				"skipped", stats.Skipped)
		}

		if s.cfg.EventBus == nil {
			return
		}
		now := time.Now().Format(time.RFC3339)

		var sinkErr *pipeline.SinkError
		if errors.As(s.waitErr, &sinkErr) {
			s.cfg.EventBus.Publish(events.SinkFailedEvent{
				Session:   s.cfg.Name,
				Stamp:     sinkErr.Stamp,
				Error:     sinkErr.Err.Error(),
				Timestamp: now,
			})
		}

		stopped := events.SessionStoppedEvent{
			Session:   s.cfg.Name,
			Enqueued:  stats.Enqueued,
			Submitted: stats.Submitted,
			Dropped:   stats.TotalDropped(),
			Skipped:   stats.Skipped,
			Timestamp: now,
		}
		if s.waitErr != nil {
			stopped.Error = s.waitErr.Error()
		}
		s.cfg.EventBus.Publish(stopped)
	})
	return s.waitErr
}

// Close removes the session's metric series.
func (s *Session) Close() {
	metrics.DeleteSessionMetrics(s.cfg.Name)
}

// Stats returns the pipeline counters.
func (s *Session) Stats() pipeline.Stats {
	return s.pipe.Stats()
}

// Info describes the session for the API.
func (s *Session) Info() models.SessionInfo {
	s.mu.Lock()
	startedAt := s.startedAt
	s.mu.Unlock()

	return models.SessionInfo{
		Session:   s.cfg.Name,
		Kind:      s.cfg.Kind,
		Output:    s.cfg.Output,
		Interval:  s.cfg.Pipeline.Interval,
		PoolSize:  s.cfg.Pipeline.PoolSize,
		State:     s.pipe.CaptureState().String(),
		StartedAt: startedAt,
	}
}
