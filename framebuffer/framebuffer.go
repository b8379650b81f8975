/*
Package framebuffer implements an in-memory e-paper framebuffer.

Every pixel holds a native palette index. In 1-bit mode index 0 is white and
index 1 is black, in 3-bit mode the index is one of eight gray levels with 0
being black, and in color mode it selects one of the panel's inks. The
framebuffer is an *image.Paletted so it can be previewed with any image
encoder.
*/
package framebuffer

import (
	"image"
	"image/color"

	"github.com/bodgit/epdpng/palette"
)

// Mode is the display mode of a panel.
type Mode int

const (
	// Mode1Bit is black and white.
	Mode1Bit Mode = iota
	// Mode3Bit is eight levels of gray.
	Mode3Bit
	// ModeColor is a handful of inks.
	ModeColor
)

func (m Mode) String() string {
	switch m {
	case Mode1Bit:
		return "1bit"
	case Mode3Bit:
		return "3bit"
	case ModeColor:
		return "color"
	}
	return "unknown"
}

var monochrome = color.Palette{
	color.Gray{Y: 0xff},
	color.Gray{Y: 0x00},
}

// Framebuffer is the pixel memory of a panel.
type Framebuffer struct {
	*image.Paletted
	mode Mode
}

// New returns a framebuffer of the given size, cleared to white. The inks
// are only used in ModeColor; if nil, palette.Inks is used.
func New(width, height int, mode Mode, inks color.Palette) *Framebuffer {
	var p color.Palette
	switch mode {
	case Mode1Bit:
		p = monochrome
	case Mode3Bit:
		p = palette.Grays
	default:
		mode = ModeColor
		p = inks
		if len(p) == 0 {
			p = palette.Inks
		}
	}
	fb := &Framebuffer{
		Paletted: image.NewPaletted(image.Rect(0, 0, width, height), p),
		mode:     mode,
	}
	fb.Clear()
	return fb
}

// Width returns the width of the panel in pixels.
func (fb *Framebuffer) Width() int {
	return fb.Rect.Dx()
}

// Height returns the height of the panel in pixels.
func (fb *Framebuffer) Height() int {
	return fb.Rect.Dy()
}

// Mode returns the display mode.
func (fb *Framebuffer) Mode() Mode {
	return fb.mode
}

// SetPixel sets the pixel at (x, y) to palette index i. Coordinates outside
// the panel and indices outside the palette are ignored.
func (fb *Framebuffer) SetPixel(x, y int, i uint8) {
	if int(i) >= len(fb.Palette) {
		return
	}
	fb.SetColorIndex(x, y, i)
}

// White returns the palette index closest to white.
func (fb *Framebuffer) White() uint8 {
	return uint8(fb.Palette.Index(color.White))
}

// Clear sets every pixel to white.
func (fb *Framebuffer) Clear() {
	w := fb.White()
	for i := range fb.Pix {
		fb.Pix[i] = w
	}
}
