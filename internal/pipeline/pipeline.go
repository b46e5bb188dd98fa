package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/framerec/internal/logging"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("pipeline already started")

	// ErrNotStarted is returned when Join is called before Start.
	ErrNotStarted = errors.New("pipeline not started")
)

// Default tuning values.
const (
	DefaultPoolSize       = 50
	DefaultAcquireTimeout = 250 * time.Millisecond
)

// Config describes the shape and cadence of one recording pipeline.
type Config struct {
	Shape          Shape
	PoolSize       int           // buffers in the pool, also the queue capacity
	Interval       time.Duration // capture tick interval
	AcquireTimeout time.Duration // bound on one Source.Acquire call
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used by both loops.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithPacerOptions passes options through to the pacer.
func WithPacerOptions(opts ...PacerOption) Option {
	return func(p *Pipeline) {
		p.pacerOpts = append(p.pacerOpts, opts...)
	}
}

// WithDropHandler registers a callback for dropped ticks.
func WithDropHandler(h DropHandler) Option {
	return func(p *Pipeline) {
		p.onDrop = h
	}
}

// WithStopToken shares an existing stop token instead of creating one.
func WithStopToken(t *StopToken) Option {
	return func(p *Pipeline) {
		p.stop = t
	}
}

// Pipeline coordinates one capture goroutine and one encode goroutine over a
// shared pool, queue and stop token.
type Pipeline struct {
	cfg       Config
	pool      *Pool
	queue     *Queue
	stop      *StopToken
	counters  counters
	logger    logging.Logger
	onDrop    DropHandler
	pacerOpts []PacerOption

	capture *captureLoop
	encode  *encodeLoop

	mu          sync.Mutex
	started     bool
	captureDone chan struct{}
	encodeDone  chan struct{}
	done        chan struct{}
	encodeErr   error
	joinOnce    sync.Once
	joinErr     error
}

// New builds a pipeline and allocates its buffer pool.
func New(cfg Config, source Source, converter Converter, sink Sink, opts ...Option) (*Pipeline, error) {
	if source == nil || converter == nil || sink == nil {
		return nil, fmt.Errorf("source, converter and sink are required")
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}

	p := &Pipeline{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.GetLogger("pipeline")
	}
	if p.stop == nil {
		p.stop = NewStopToken()
	}

	pool, err := NewPool(cfg.PoolSize, cfg.Shape)
	if err != nil {
		return nil, fmt.Errorf("create buffer pool: %w", err)
	}
	p.pool = pool
	p.queue = NewQueue(cfg.PoolSize)

	pacer, err := NewPacer(cfg.Interval, p.pacerOpts...)
	if err != nil {
		return nil, err
	}

	p.capture = &captureLoop{
		pacer:     pacer,
		source:    source,
		converter: converter,
		pool:      p.pool,
		queue:     p.queue,
		stop:      p.stop,
		timeout:   cfg.AcquireTimeout,
		counters:  &p.counters,
		onDrop:    p.onDrop,
		logger:    p.logger,
	}
	p.encode = &encodeLoop{
		queue:    p.queue,
		pool:     p.pool,
		sink:     sink,
		stop:     p.stop,
		counters: &p.counters,
		logger:   p.logger,
	}

	return p, nil
}

// Start spawns the capture and encode goroutines. Cancelling ctx aborts both
// loops without a final flush; use RequestStop for a clean shutdown.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	p.captureDone = make(chan struct{})
	p.encodeDone = make(chan struct{})
	p.done = make(chan struct{})

	p.logger.Info("Starting pipeline",
		"kind", string(p.cfg.Shape.Kind),
		"pool_size", p.pool.Cap(),
		"buffer_bytes", p.cfg.Shape.Size(),
		"interval", p.cfg.Interval)

	go func() {
		defer close(p.captureDone)
		p.capture.run(ctx)
	}()

	go func() {
		defer close(p.encodeDone)
		p.encodeErr = p.encode.run(ctx)
	}()

	go func() {
		<-p.captureDone
		<-p.encodeDone
		close(p.done)
	}()

	return nil
}

// RequestStop asks both loops to wind down. Capture stops at its next check,
// encode keeps draining until the queue is empty. Idempotent and safe from any
// goroutine.
func (p *Pipeline) RequestStop() {
	if !p.stop.Stopped() {
		p.logger.Info("Stop requested")
	}
	p.stop.Request()
}

// Join waits for capture to exit, then for encode to drain and exit, and returns
// every buffer still in flight to the pool. The error is non-nil only when the
// sink failed or the start context was cancelled.
func (p *Pipeline) Join() error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	p.joinOnce.Do(func() {
		<-p.captureDone
		<-p.encodeDone

		// Entries left behind after a sink failure still own pool buffers.
		abandoned := p.queue.Drain(func(e Entry) {
			if err := p.pool.Release(e.Buffer); err != nil {
				p.logger.Error("Failed to return abandoned buffer", "stamp", e.Stamp, "error", err)
			}
		})
		if abandoned > 0 {
			p.logger.Warn("Released buffers that were never encoded", "count", abandoned)
		}

		p.joinErr = p.encodeErr
		stats := p.Stats()
		p.logger.Info("Pipeline stopped",
			"ticks", stats.Ticks,
			"enqueued", stats.Enqueued,
			"submitted", stats.Submitted,
			"skipped", stats.Skipped,
			"dropped", stats.TotalDropped(),
			"idle_buffers", stats.IdleBuffers)
	})
	return p.joinErr
}

// Done is closed once both loops have exited. Nil before Start.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// StopToken returns the pipeline's shared stop token.
func (p *Pipeline) StopToken() *StopToken {
	return p.stop
}

// Pool exposes the buffer pool for inspection.
func (p *Pipeline) Pool() *Pool {
	return p.pool
}

// CaptureState returns the capture loop's current state.
func (p *Pipeline) CaptureState() CaptureState {
	return CaptureState(p.capture.state.Load())
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	s := p.counters.snapshot()
	s.QueueDepth = p.queue.Len()
	s.IdleBuffers = p.pool.Idle()
	s.PoolSize = p.pool.Cap()
	return s
}
