package sink

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/smazurov/framerec/internal/logging"
	"github.com/smazurov/framerec/internal/pipeline"
)

const wavHeaderSize = 44

// ErrWAVTooLarge is returned once the data chunk would pass 4 GiB.
var ErrWAVTooLarge = errors.New("wav data exceeds 4 GiB")

// WAVSink writes 16-bit PCM blocks to a RIFF/WAVE file. Stamp gaps are
// filled with silence so the file's timeline matches the stamps.
type WAVSink struct {
	f      *os.File
	w      *bufio.Writer
	shape  pipeline.Shape
	logger logging.Logger

	silence   []byte
	nextStamp int64
	dataBytes uint64
	closed    bool
}

// NewWAVSink creates path and writes a placeholder header.
func NewWAVSink(path string, shape pipeline.Shape) (*WAVSink, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.Kind != pipeline.KindAudio {
		return nil, fmt.Errorf("buffer kind %q is not audio", shape.Kind)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav: %w", err)
	}

	s := &WAVSink{
		f:       f,
		w:       bufio.NewWriterSize(f, 64*1024),
		shape:   shape,
		logger:  logging.GetLogger("sink").With("output", path),
		silence: make([]byte, shape.Size()),
	}
	if err := writeWAVHeader(s.w, shape, 0); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Submit implements pipeline.Sink.
func (s *WAVSink) Submit(buf *pipeline.Buffer, stamp int64) error {
	if s.closed {
		return os.ErrClosed
	}
	if len(buf.Data) != len(s.silence) {
		return fmt.Errorf("block is %d bytes, file expects %d", len(buf.Data), len(s.silence))
	}
	if stamp < s.nextStamp {
		return fmt.Errorf("%w: %d after %d", ErrOutOfOrder, stamp, s.nextStamp-1)
	}

	for ; s.nextStamp < stamp; s.nextStamp++ {
		if err := s.write(s.silence); err != nil {
			return err
		}
	}
	if err := s.write(buf.Data); err != nil {
		return err
	}
	s.nextStamp = stamp + 1
	return nil
}

func (s *WAVSink) write(block []byte) error {
	if s.dataBytes+uint64(len(block)) > math.MaxUint32-36 {
		return ErrWAVTooLarge
	}
	if _, err := s.w.Write(block); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	s.dataBytes += uint64(len(block))
	return nil
}

// Flush implements pipeline.Sink. It rewrites the header with the final
// sizes and closes the file.
func (s *WAVSink) Flush() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.w.Flush()
	if err == nil {
		_, err = s.f.Seek(0, io.SeekStart)
	}
	if err == nil {
		err = writeWAVHeader(s.f, s.shape, uint32(s.dataBytes))
	}
	if closeErr := s.f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}

	s.logger.Info("WAV file finalized", "bytes", s.dataBytes, "blocks", s.nextStamp)
	return nil
}

// DataBytes returns the PCM bytes written so far.
func (s *WAVSink) DataBytes() uint64 {
	return s.dataBytes
}

type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

func writeWAVHeader(w io.Writer, shape pipeline.Shape, dataSize uint32) error {
	blockAlign := shape.Channels * shape.BytesPerSample
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1, // PCM
		Channels:      uint16(shape.Channels),
		SampleRate:    uint32(shape.SampleRate),
		ByteRate:      uint32(shape.SampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: uint16(shape.BytesPerSample * 8),
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}
	return binary.Write(w, binary.LittleEndian, &h)
}
