package pipeline

import "fmt"

// Kind identifies what a buffer's payload holds.
type Kind string

// Buffer kinds.
const (
	KindVideo Kind = "video" // planar YUV 4:2:0
	KindAudio Kind = "audio" // interleaved PCM
)

// Shape is the fixed format every buffer in a pool shares.
type Shape struct {
	Kind Kind

	// Video
	Width  int
	Height int

	// Audio
	SampleRate     int
	Channels       int
	BytesPerSample int
	Samples        int // samples per channel in one buffer
}

// VideoShape returns the shape of a YUV 4:2:0 frame.
func VideoShape(width, height int) Shape {
	return Shape{Kind: KindVideo, Width: width, Height: height}
}

// AudioShape returns the shape of an interleaved PCM block.
func AudioShape(sampleRate, channels, bytesPerSample, samples int) Shape {
	return Shape{
		Kind:           KindAudio,
		SampleRate:     sampleRate,
		Channels:       channels,
		BytesPerSample: bytesPerSample,
		Samples:        samples,
	}
}

// Validate checks that the shape describes a non-empty payload.
func (s Shape) Validate() error {
	switch s.Kind {
	case KindVideo:
		if s.Width <= 0 || s.Height <= 0 {
			return fmt.Errorf("invalid video size %dx%d", s.Width, s.Height)
		}
		if s.Width%2 != 0 || s.Height%2 != 0 {
			return fmt.Errorf("video size %dx%d must be even for 4:2:0", s.Width, s.Height)
		}
	case KindAudio:
		if s.SampleRate <= 0 || s.Channels <= 0 || s.BytesPerSample <= 0 || s.Samples <= 0 {
			return fmt.Errorf("invalid audio shape %+v", s)
		}
	default:
		return fmt.Errorf("unknown buffer kind %q", s.Kind)
	}
	return nil
}

// Size returns the payload size in bytes.
func (s Shape) Size() int {
	switch s.Kind {
	case KindVideo:
		luma := s.Width * s.Height
		return luma + 2*(luma/4)
	case KindAudio:
		return s.Samples * s.Channels * s.BytesPerSample
	}
	return 0
}

// Buffer is a pool-owned, fixed-capacity block of converted samples.
// Exactly one goroutine owns a Buffer at any instant.
type Buffer struct {
	Data  []byte
	Shape Shape
	Stamp int64

	// Silent marks an audio block that carries no signal. Converters set it,
	// the pool clears it on release.
	Silent bool

	index int
	owner *Pool
}

// Planes splits a video payload into its Y, U and V planes.
func (b *Buffer) Planes() (y, u, v []byte) {
	luma := b.Shape.Width * b.Shape.Height
	chroma := luma / 4
	return b.Data[:luma], b.Data[luma : luma+chroma], b.Data[luma+chroma : luma+2*chroma]
}
