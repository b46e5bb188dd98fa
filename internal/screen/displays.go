// Package screen captures a display with kbinani/screenshot and converts
// the frames to the pipeline's planar YUV 4:2:0 buffers.
package screen

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Hooks into screenshot, replaced in tests.
var (
	numDisplays   = screenshot.NumActiveDisplays
	displayBounds = screenshot.GetDisplayBounds
	captureRect   = screenshot.CaptureRect
)

// Display describes one active display.
type Display struct {
	Index   int             `json:"index" example:"0" doc:"Display index"`
	Bounds  image.Rectangle `json:"-"`
	X       int             `json:"x" doc:"Left edge in virtual screen coordinates"`
	Y       int             `json:"y" doc:"Top edge in virtual screen coordinates"`
	Width   int             `json:"width" example:"1920" doc:"Width in pixels"`
	Height  int             `json:"height" example:"1080" doc:"Height in pixels"`
	Primary bool            `json:"primary" doc:"Whether this is the primary display"`
}

// ListDisplays returns every active display, primary first.
func ListDisplays() []Display {
	n := numDisplays()
	displays := make([]Display, 0, n)
	for i := range n {
		b := displayBounds(i)
		displays = append(displays, Display{
			Index:   i,
			Bounds:  b,
			X:       b.Min.X,
			Y:       b.Min.Y,
			Width:   b.Dx(),
			Height:  b.Dy(),
			Primary: i == 0,
		})
	}
	return displays
}

// DisplayBounds returns the bounds of display index.
func DisplayBounds(index int) (image.Rectangle, error) {
	n := numDisplays()
	if n == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays")
	}
	if index < 0 || index >= n {
		return image.Rectangle{}, fmt.Errorf("display %d out of range (0-%d)", index, n-1)
	}
	return displayBounds(index), nil
}

// OutputSize scales a capture rectangle and rounds both sides down to
// even numbers, as 4:2:0 requires.
func OutputSize(bounds image.Rectangle, scale float64) (width, height int) {
	if scale <= 0 {
		scale = 1
	}
	width = int(float64(bounds.Dx())*scale) &^ 1
	height = int(float64(bounds.Dy())*scale) &^ 1
	return max(width, 2), max(height, 2)
}
