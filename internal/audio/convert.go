package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/smazurov/framerec/internal/pipeline"
)

// Converter turns float32 chunks into signed 16-bit little-endian PCM.
//
// Samples are scaled by the loudest absolute sample seen so far once that
// peak exceeds 1.0, then clamped. A chunk of exact zeros is marked silent.
// Convert is called from the capture goroutine only.
type Converter struct {
	peak float32
}

// NewConverter returns a converter with no peak history.
func NewConverter() *Converter {
	return &Converter{}
}

// Peak returns the running peak.
func (c *Converter) Peak() float32 {
	return c.peak
}

// Convert implements pipeline.Converter.
func (c *Converter) Convert(raw pipeline.RawFrame, dst *pipeline.Buffer) error {
	chunk, ok := raw.(*Chunk)
	if !ok {
		return fmt.Errorf("unexpected raw frame %T", raw)
	}
	if dst.Shape.Kind != pipeline.KindAudio || dst.Shape.BytesPerSample != 2 {
		return fmt.Errorf("buffer shape %+v is not 16-bit audio", dst.Shape)
	}

	n := len(chunk.Data) / BytesPerFloat
	if n*2 != len(dst.Data) {
		return fmt.Errorf("chunk has %d samples, buffer holds %d", n, len(dst.Data)/2)
	}

	silent := true
	for i := range n {
		s := sampleAt(chunk.Data, i)
		if s != 0 {
			silent = false
		}
		if a := float32(math.Abs(float64(s))); a > c.peak {
			c.peak = a
		}
	}

	if silent {
		clear(dst.Data)
		dst.Silent = true
		return nil
	}

	scale := float32(1)
	if c.peak > 1 {
		scale = 1 / c.peak
	}
	for i := range n {
		s := sampleAt(chunk.Data, i) * scale
		s = min(max(s, -1), 1)
		binary.LittleEndian.PutUint16(dst.Data[i*2:], uint16(int16(s*32767)))
	}
	return nil
}

// sampleAt decodes the i-th f32le sample; NaN and Inf read as silence.
func sampleAt(data []byte, i int) float32 {
	s := math.Float32frombits(binary.LittleEndian.Uint32(data[i*BytesPerFloat:]))
	if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
		return 0
	}
	return s
}
