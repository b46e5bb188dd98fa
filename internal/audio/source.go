// Package audio records system audio: an ffmpeg capture subprocess
// streams float32 PCM that is cut into fixed chunks, one per tick, and
// converted to 16-bit PCM.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/framerec/internal/ffmpeg"
	"github.com/smazurov/framerec/internal/logging"
	"github.com/smazurov/framerec/internal/pipeline"
	"github.com/smazurov/framerec/internal/process"
)

// BytesPerFloat is the size of one f32le sample from the capture process.
const BytesPerFloat = 4

// chunkSlots is how many chunks the reader may hold ahead of the capture loop.
const chunkSlots = 8

// chunkCount adds the chunk being read into and the one the capture loop
// holds between Acquire and Release.
const chunkCount = chunkSlots + 2

// Chunk is one period of interleaved float32 samples. It implements
// pipeline.RawFrame.
type Chunk struct {
	Data []byte // f32le, Samples*Channels*4 bytes

	released atomic.Bool
	src      *Source
}

// Release returns the chunk to the reader. Further calls are no-ops.
func (c *Chunk) Release() {
	if c.released.Swap(true) {
		return
	}
	c.src.free <- c
}

// Source cuts a PCM byte stream into chunks of one tick each.
type Source struct {
	shape  pipeline.Shape
	reader io.Reader
	proc   *process.Process
	logger logging.Logger

	chunks chan *Chunk
	free   chan *Chunk
	done   chan struct{}

	errMu sync.Mutex
	err   error

	overruns atomic.Uint64
}

// NewSource starts reading r. shape describes the converted s16 buffers;
// the stream must carry the same sample rate and channel count as float32.
func NewSource(r io.Reader, shape pipeline.Shape, logger logging.Logger) (*Source, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.Kind != pipeline.KindAudio {
		return nil, fmt.Errorf("buffer kind %q is not audio", shape.Kind)
	}
	if logger == nil {
		logger = logging.GetLogger("audio")
	}

	s := &Source{
		shape:  shape,
		reader: r,
		logger: logger,
		chunks: make(chan *Chunk, chunkSlots),
		free:   make(chan *Chunk, chunkCount),
		done:   make(chan struct{}),
	}
	size := shape.Samples * shape.Channels * BytesPerFloat
	for range chunkCount {
		s.free <- &Chunk{Data: make([]byte, size), src: s}
	}

	go s.readLoop()
	return s, nil
}

// StartCapture launches ffmpeg with params and reads its stdout.
func StartCapture(params ffmpeg.AudioCaptureParams, shape pipeline.Shape) (*Source, error) {
	if params.SampleRate != shape.SampleRate || params.Channels != shape.Channels {
		return nil, fmt.Errorf("capture %d Hz x%d does not match buffers %d Hz x%d",
			params.SampleRate, params.Channels, shape.SampleRate, shape.Channels)
	}

	logger := logging.GetLogger("audio")
	proc := process.New(ffmpeg.BuildAudioCaptureCommand(params), logger,
		process.WithStdout(),
		process.WithLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel),
		process.WithTimeouts(2*time.Second, 2*time.Second),
	)
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("start audio capture: %w", err)
	}

	s, err := NewSource(proc.Stdout(), shape, logger)
	if err != nil {
		_, _ = proc.Stop()
		return nil, err
	}
	s.proc = proc
	return s, nil
}

func (s *Source) readLoop() {
	defer close(s.done)
	defer close(s.chunks)

	next := <-s.free
	for {
		if _, err := io.ReadFull(s.reader, next.Data); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Debug("Discarding partial chunk at end of stream")
			}
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				err = io.EOF
			}
			s.free <- next
			s.setErr(err)
			return
		}
		next.released.Store(false)

		select {
		case s.chunks <- next:
			next = <-s.free
		default:
			// Ring full: the oldest unread chunk is overwritten by this one.
			select {
			case oldest := <-s.chunks:
				s.overruns.Add(1)
				s.chunks <- next
				next = oldest
			case s.chunks <- next:
				next = <-s.free
			}
		}
	}
}

func (s *Source) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// Err returns why the stream ended, or nil while it is running.
func (s *Source) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Done is closed when the stream has ended.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Overruns counts chunks discarded because nobody acquired them in time.
func (s *Source) Overruns() uint64 {
	return s.overruns.Load()
}

// Acquire implements pipeline.Source.
func (s *Source) Acquire(ctx context.Context, timeout time.Duration) (pipeline.RawFrame, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c, ok := <-s.chunks:
		if !ok {
			return nil, fmt.Errorf("audio stream ended: %w", s.Err())
		}
		return c, nil
	case <-timer.C:
		return nil, pipeline.ErrAcquireTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the capture process, if any, and waits for the reader.
func (s *Source) Close() error {
	if s.proc != nil {
		// ffmpeg exits non-zero when interrupted mid-capture.
		if code, err := s.proc.Stop(); err != nil {
			s.logger.Debug("Audio capture exited", "exit_code", code, "error", err)
		}
	}

	select {
	case <-s.done:
		return nil
	case <-time.After(2 * time.Second):
		return errors.New("audio reader did not stop")
	}
}
