package screen

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/framerec/internal/logging"
	"github.com/smazurov/framerec/internal/pipeline"
)

// Capturer grabs the pixels inside rect.
type Capturer func(rect image.Rectangle) (*image.RGBA, error)

// Frame is a captured desktop image. It implements pipeline.RawFrame.
type Frame struct {
	Image    *image.RGBA
	Captured time.Time

	released atomic.Bool
	src      *Source
}

// Release hands the frame back. Further calls are no-ops.
func (f *Frame) Release() {
	if f.released.Swap(true) {
		return
	}
	f.Image = nil
	f.src.outstanding.Add(-1)
}

type captureResult struct {
	img *image.RGBA
	at  time.Time
	err error
}

// Source captures one screen region per Acquire.
//
// Screen grabs cannot be cancelled, so a grab that outlives its timeout
// keeps running. Its result goes to the next Acquire instead of starting a
// second grab, which keeps at most one grab in flight.
type Source struct {
	rect    image.Rectangle
	capture Capturer
	logger  logging.Logger

	mu      sync.Mutex
	pending chan captureResult

	outstanding atomic.Int64
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithCapturer replaces screenshot.CaptureRect.
func WithCapturer(c Capturer) SourceOption {
	return func(s *Source) { s.capture = c }
}

// WithRegion captures rect instead of the whole display.
func WithRegion(rect image.Rectangle) SourceOption {
	return func(s *Source) { s.rect = rect }
}

// WithLogger overrides the "screen" module logger.
func WithLogger(l logging.Logger) SourceOption {
	return func(s *Source) { s.logger = l }
}

// NewSource creates a source for display index.
func NewSource(display int, opts ...SourceOption) (*Source, error) {
	s := &Source{
		capture: captureRect,
		logger:  logging.GetLogger("screen"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.rect.Empty() {
		rect, err := DisplayBounds(display)
		if err != nil {
			return nil, err
		}
		s.rect = rect
	}
	if s.rect.Empty() {
		return nil, fmt.Errorf("empty capture region %v", s.rect)
	}

	s.logger.Debug("Screen source ready", "display", display, "region", s.rect.String())
	return s, nil
}

// Bounds returns the captured region.
func (s *Source) Bounds() image.Rectangle {
	return s.rect
}

// Outstanding reports frames acquired but not yet released.
func (s *Source) Outstanding() int64 {
	return s.outstanding.Load()
}

// Acquire implements pipeline.Source.
func (s *Source) Acquire(ctx context.Context, timeout time.Duration) (pipeline.RawFrame, error) {
	s.mu.Lock()
	pending := s.pending
	if pending == nil {
		pending = make(chan captureResult, 1)
		s.pending = pending
		go func() {
			img, err := s.capture(s.rect)
			pending <- captureResult{img: img, at: time.Now(), err: err}
		}()
	}
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pending:
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()

		if res.err != nil {
			return nil, fmt.Errorf("capture %v: %w", s.rect, res.err)
		}
		s.outstanding.Add(1)
		return &Frame{Image: res.img, Captured: res.at, src: s}, nil
	case <-timer.C:
		return nil, pipeline.ErrAcquireTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
