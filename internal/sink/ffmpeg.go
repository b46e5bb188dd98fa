package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smazurov/framerec/internal/ffmpeg"
	"github.com/smazurov/framerec/internal/logging"
	"github.com/smazurov/framerec/internal/metrics/collectors"
	"github.com/smazurov/framerec/internal/pipeline"
	"github.com/smazurov/framerec/internal/process"
)

// ErrOutOfOrder is returned when a stamp is not after the previous one.
var ErrOutOfOrder = errors.New("stamp out of order")

// FFmpegConfig configures an FFmpegSink.
type FFmpegConfig struct {
	Params ffmpeg.EncodeParams

	// ProgressSocket, when set, is a Unix socket path ffmpeg reports
	// progress to. The values land in the session's encoder metrics.
	ProgressSocket string
	Session        string

	// FlushTimeout bounds the wait for ffmpeg to finish after stdin closes.
	FlushTimeout time.Duration
}

// FFmpegSink pipes raw I420 frames into an ffmpeg encoder.
//
// ffmpeg stamps input frames at a constant rate, so a gap of n stamps is
// filled by writing the previous frame n more times. A gap before the
// first frame is filled with the first frame.
type FFmpegSink struct {
	cfg       FFmpegConfig
	proc      *process.Process
	tail      *process.Tail
	collector *collectors.ProgressCollector
	logger    logging.Logger

	frameSize int
	last      []byte
	haveLast  bool
	nextStamp int64

	written    uint64
	duplicated uint64

	flushOnce sync.Once
	flushErr  error
}

// NewFFmpegSink starts the encoder process.
func NewFFmpegSink(cfg FFmpegConfig) (*FFmpegSink, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 30 * time.Second
	}

	s := &FFmpegSink{
		cfg:       cfg,
		tail:      process.NewTail(8),
		logger:    logging.GetLogger("sink").With("output", cfg.Params.Output),
		frameSize: pipeline.VideoShape(cfg.Params.Width, cfg.Params.Height).Size(),
	}
	s.last = make([]byte, s.frameSize)

	if cfg.ProgressSocket != "" {
		s.collector = collectors.NewProgressCollector(cfg.ProgressSocket, cfg.Session)
		if err := s.collector.Start(context.Background()); err != nil {
			s.logger.Warn("Progress reporting disabled", "error", err)
			s.collector = nil
		} else {
			cfg.Params.ProgressURL = s.collector.URL()
		}
	}

	s.proc = process.New(ffmpeg.BuildEncodeCommand(cfg.Params), s.logger,
		process.WithStdin(),
		process.WithLogParser(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel),
		process.WithOutputHandler(s.tail),
	)
	if err := s.proc.Start(); err != nil {
		s.stopCollector()
		return nil, fmt.Errorf("start encoder: %w", err)
	}
	return s, nil
}

// Submit implements pipeline.Sink.
func (s *FFmpegSink) Submit(buf *pipeline.Buffer, stamp int64) error {
	if len(buf.Data) != s.frameSize {
		return fmt.Errorf("frame is %d bytes, encoder expects %d", len(buf.Data), s.frameSize)
	}
	if stamp < s.nextStamp {
		return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, stamp, s.nextStamp-1)
	}

	fill := buf.Data
	if s.haveLast {
		fill = s.last
	}
	for ; s.nextStamp < stamp; s.nextStamp++ {
		if err := s.write(fill); err != nil {
			return err
		}
		s.duplicated++
	}

	if err := s.write(buf.Data); err != nil {
		return err
	}
	copy(s.last, buf.Data)
	s.haveLast = true
	s.nextStamp = stamp + 1
	return nil
}

func (s *FFmpegSink) write(frame []byte) error {
	if _, err := s.proc.Stdin().Write(frame); err != nil {
		return s.withStderr(fmt.Errorf("write frame: %w", err))
	}
	s.written++
	return nil
}

// Flush implements pipeline.Sink. It closes ffmpeg's input and waits for
// the output file to be finalized. Later calls return the first result.
func (s *FFmpegSink) Flush() error {
	s.flushOnce.Do(func() {
		code, err := s.proc.CloseAndWait(s.cfg.FlushTimeout)
		s.stopCollector()
		if err != nil {
			s.flushErr = s.withStderr(err)
			return
		}
		s.logger.Info("Encoder finished", "frames", s.written, "duplicated", s.duplicated, "exit_code", code)
	})
	return s.flushErr
}

// Close stops the encoder without waiting for a clean finish. It is a
// no-op after Flush.
func (s *FFmpegSink) Close() error {
	var err error
	s.flushOnce.Do(func() {
		_, err = s.proc.Stop()
		s.stopCollector()
		s.flushErr = errors.New("encoder closed without flush")
	})
	return err
}

// Written counts frames written to ffmpeg, duplicates included.
func (s *FFmpegSink) Written() uint64 { return s.written }

// Duplicated counts frames written to fill stamp gaps.
func (s *FFmpegSink) Duplicated() uint64 { return s.duplicated }

func (s *FFmpegSink) stopCollector() {
	if s.collector != nil {
		_ = s.collector.Stop()
	}
}

func (s *FFmpegSink) withStderr(err error) error {
	if lines := s.tail.String(); lines != "" {
		return fmt.Errorf("%w (ffmpeg: %s)", err, lines)
	}
	return err
}
