package palette

import (
	"image"
	"image/color"

	"github.com/ericpauley/go-quantize/quantize"
)

// Derive picks n representative colors from m using median cut. It is used
// to emulate color panels whose inks differ from Inks.
func Derive(m image.Image, n int) color.Palette {
	if n < 1 {
		n = 1
	} else if n > 256 {
		n = 256
	}
	q := quantize.MedianCutQuantizer{}
	return q.Quantize(make(color.Palette, 0, n), m)
}
