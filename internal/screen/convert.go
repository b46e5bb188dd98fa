package screen

import (
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/smazurov/framerec/internal/pipeline"
)

// Converter turns captured RGBA frames into I420 buffers, resizing when
// the capture and the pool shape differ.
type Converter struct {
	Filter imaging.ResampleFilter
}

// NewConverter returns a converter using bilinear resampling.
func NewConverter() *Converter {
	return &Converter{Filter: imaging.Linear}
}

// Convert implements pipeline.Converter.
func (c *Converter) Convert(raw pipeline.RawFrame, dst *pipeline.Buffer) error {
	frame, ok := raw.(*Frame)
	if !ok {
		return fmt.Errorf("unexpected raw frame %T", raw)
	}
	if frame.Image == nil {
		return fmt.Errorf("frame already released")
	}
	if dst.Shape.Kind != pipeline.KindVideo {
		return fmt.Errorf("buffer kind %q is not video", dst.Shape.Kind)
	}

	w, h := dst.Shape.Width, dst.Shape.Height
	var pix []byte
	var stride int

	b := frame.Image.Bounds()
	if b.Dx() == w && b.Dy() == h {
		pix, stride = frame.Image.Pix[frame.Image.PixOffset(b.Min.X, b.Min.Y):], frame.Image.Stride
	} else {
		scaled := imaging.Resize(frame.Image, w, h, c.Filter)
		pix, stride = scaled.Pix, scaled.Stride
	}

	y, u, v := dst.Planes()
	rgbaToI420(pix, stride, w, h, y, u, v)
	return nil
}

// rgbaToI420 converts 8-bit RGBA to planar 4:2:0 using BT.601
// limited-range integer coefficients. Chroma is taken from the average
// of each 2x2 block. w and h must be even.
func rgbaToI420(pix []byte, stride, w, h int, y, u, v []byte) {
	for row := range h {
		line := pix[row*stride:]
		out := y[row*w:]
		for col := range w {
			r, g, b := int(line[col*4]), int(line[col*4+1]), int(line[col*4+2])
			out[col] = uint8(((66*r + 129*g + 25*b + 128) >> 8) + 16)
		}
	}

	cw := w / 2
	for row := 0; row < h; row += 2 {
		top := pix[row*stride:]
		bottom := pix[(row+1)*stride:]
		for col := 0; col < w; col += 2 {
			i := col * 4
			r := (int(top[i]) + int(top[i+4]) + int(bottom[i]) + int(bottom[i+4]) + 2) >> 2
			g := (int(top[i+1]) + int(top[i+5]) + int(bottom[i+1]) + int(bottom[i+5]) + 2) >> 2
			b := (int(top[i+2]) + int(top[i+6]) + int(bottom[i+2]) + int(bottom[i+6]) + 2) >> 2

			ci := (row/2)*cw + col/2
			u[ci] = uint8(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
			v[ci] = uint8(((112*r - 94*g - 18*b + 128) >> 8) + 128)
		}
	}
}
